package fetcher

import (
	"bytes"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewXMLDecoder_Latin1(t *testing.T) {
	// "Caf\xe9" is ISO-8859-1 for "Café".
	doc := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><Name>Caf\xe9</Name>")

	var v struct {
		XMLName xml.Name `xml:"Name"`
		Text    string   `xml:",chardata"`
	}
	require.NoError(t, NewXMLDecoder(bytes.NewReader(doc)).Decode(&v))
	assert.Equal(t, "Café", v.Text)
}

func TestNewXMLDecoder_UnknownCharset(t *testing.T) {
	doc := []byte(`<?xml version="1.0" encoding="x-made-up"?><Name>a</Name>`)

	var v struct {
		Text string `xml:",chardata"`
	}
	err := NewXMLDecoder(bytes.NewReader(doc)).Decode(&v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported charset")
}
