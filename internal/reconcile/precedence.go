package reconcile

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// Category groups record fields that share one origin priority.
type Category string

const (
	CategoryIdentity       Category = "identity"
	CategoryStatus         Category = "status"
	CategoryClassification Category = "classification"
	CategoryLocation       Category = "location"
	CategoryFinancial      Category = "financial"
	CategoryPersonnel      Category = "personnel"
)

// Categories lists every category.
var Categories = []Category{
	CategoryIdentity, CategoryStatus, CategoryClassification,
	CategoryLocation, CategoryFinancial, CategoryPersonnel,
}

// Precedence orders origins per category, highest priority first. An origin
// missing from a category's list never supplies fields of that category.
type Precedence map[Category][]model.Origin

// DefaultPrecedence prefers the registry for who an organization is and the
// filing for what it reports.
func DefaultPrecedence() Precedence {
	registryFirst := []model.Origin{model.OriginRegistry, model.OriginLookupAPI}
	filingFirst := []model.Origin{model.OriginFiling, model.OriginLookupAPI}
	return Precedence{
		CategoryIdentity:       registryFirst,
		CategoryStatus:         slices.Clone(registryFirst),
		CategoryClassification: slices.Clone(registryFirst),
		CategoryLocation:       slices.Clone(registryFirst),
		CategoryFinancial:      filingFirst,
		CategoryPersonnel:      slices.Clone(filingFirst),
	}
}

// LoadPrecedence reads a YAML override of the form
//
//	financial: [irs_990, propublica]
//	location: [propublica, irs_bmf]
//
// on top of DefaultPrecedence. An empty path returns the defaults.
func LoadPrecedence(path string) (Precedence, error) {
	p := DefaultPrecedence()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: read precedence file")
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "reconcile: parse precedence file")
	}

	for name, origins := range raw {
		cat := Category(name)
		if !slices.Contains(Categories, cat) {
			return nil, eris.Errorf("reconcile: unknown category %q", name)
		}
		order := make([]model.Origin, 0, len(origins))
		for _, o := range origins {
			origin := model.Origin(o)
			if !slices.Contains(model.Origins, origin) {
				return nil, eris.Errorf("reconcile: unknown origin %q in %s", o, name)
			}
			if slices.Contains(order, origin) {
				return nil, eris.Errorf("reconcile: origin %q repeated in %s", o, name)
			}
			order = append(order, origin)
		}
		p[cat] = order
	}
	return p, nil
}
