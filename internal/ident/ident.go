// Package ident canonicalizes raw EIN and organization-name input into lookup keys.
package ident

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
)

// ErrInvalidIdentifier is returned when input is empty or parses as neither
// an EIN nor a usable name query.
var ErrInvalidIdentifier = eris.New("invalid identifier")

// Kind distinguishes the two LookupKey forms.
type Kind int

const (
	// KindEIN is a 9-digit Employer Identification Number.
	KindEIN Kind = iota + 1
	// KindName is a free-text organization name query.
	KindName
)

func (k Kind) String() string {
	switch k {
	case KindEIN:
		return "ein"
	case KindName:
		return "name"
	default:
		return "unknown"
	}
}

// Key is a normalized lookup key. Exactly one of EIN or Name is set.
type Key struct {
	Kind  Kind
	EIN   string
	Name  string
	State string
}

// IsEIN reports whether the key is the EIN form.
func (k Key) IsEIN() bool { return k.Kind == KindEIN }

// Formatted renders an EIN key as XX-XXXXXXX. Name keys return the name.
func (k Key) Formatted() string {
	if k.Kind != KindEIN {
		return k.Name
	}
	return k.EIN[:2] + "-" + k.EIN[2:]
}

func (k Key) String() string {
	if k.Kind == KindEIN {
		return "ein:" + k.EIN
	}
	if k.State != "" {
		return "name:" + k.Name + "@" + k.State
	}
	return "name:" + k.Name
}

// unissuedPrefixes are EIN campus prefixes the IRS has never assigned.
// Anything else is accepted, including prefixes we do not recognize.
var unissuedPrefixes = map[string]bool{
	"00": true, "07": true, "08": true, "09": true,
	"17": true, "18": true, "19": true, "28": true,
	"29": true, "49": true, "69": true, "70": true,
	"78": true, "79": true, "89": true, "96": true,
	"97": true,
}

// einShape matches inputs made only of digits and common EIN separators.
var einShape = regexp.MustCompile(`^[\d\s\-.]+$`)

// Normalize parses raw input into a Key. Input consisting of digits and
// separators is treated as an EIN; anything containing letters is a name query.
// state optionally restricts name queries and is ignored for EINs.
func Normalize(raw, state string) (Key, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Key{}, eris.Wrap(ErrInvalidIdentifier, "ident: empty input")
	}

	if einShape.MatchString(trimmed) {
		ein, err := NormalizeEIN(trimmed)
		if err != nil {
			return Key{}, err
		}
		return Key{Kind: KindEIN, EIN: ein}, nil
	}

	name := NormalizeName(trimmed)
	if name == "" {
		return Key{}, eris.Wrapf(ErrInvalidIdentifier, "ident: no matchable text in %q", raw)
	}
	st, err := NormalizeState(state)
	if err != nil {
		return Key{}, err
	}
	return Key{Kind: KindName, Name: name, State: st}, nil
}

// NormalizeEIN strips non-digits and validates the 9-digit EIN form.
func NormalizeEIN(raw string) (string, error) {
	var b strings.Builder
	b.Grow(9)
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) != 9 {
		return "", eris.Wrapf(ErrInvalidIdentifier, "ident: EIN %q has %d digits, want 9", raw, len(digits))
	}
	if unissuedPrefixes[digits[:2]] {
		return "", eris.Wrapf(ErrInvalidIdentifier, "ident: EIN prefix %s was never issued", digits[:2])
	}
	return digits, nil
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

// NormalizeName lowercases, strips punctuation that carries no matching value,
// and collapses whitespace. Ampersands become "and"; hyphens and slashes split words.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}

	name = strings.NewReplacer(
		"&", " and ",
		"-", " ",
		"/", " ",
		"'", "",
		"’", "",
	).Replace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, name)

	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))
}

// NormalizeState uppercases a two-letter state filter. Empty input is allowed.
func NormalizeState(state string) (string, error) {
	st := strings.ToUpper(strings.TrimSpace(state))
	if st == "" {
		return "", nil
	}
	if len(st) != 2 || !unicode.IsLetter(rune(st[0])) || !unicode.IsLetter(rune(st[1])) {
		return "", eris.Wrapf(ErrInvalidIdentifier, "ident: state filter %q is not a 2-letter code", state)
	}
	return st, nil
}
