package samp

import (
	"sort"
	"strings"
)

// Standard metadata keys.
const (
	MetaName             = "samp.name"
	MetaDescriptionText  = "samp.description.text"
	MetaDescriptionHTML  = "samp.description.html"
	MetaIconURL          = "samp.icon.url"
	MetaDocumentationURL = "samp.documentation.url"
	MetaAuthorName       = "author.name"
	MetaAuthorEmail      = "author.email"
	MetaAuthorAffil      = "author.affiliation"
	MetaClientVersion    = "client.version"
)

// Metadata describes a registered application. Values are strings on the wire;
// non-standard keys are allowed.
type Metadata map[string]string

// NewMetadata creates metadata with the given samp.name.
func NewMetadata(name string) Metadata {
	return Metadata{MetaName: strings.TrimSpace(name)}
}

// Icon and documentation advertised by DefaultMetadata.
const (
	DefaultIconURL          = "https://go.dev/images/go-logo-blue.svg"
	DefaultDocumentationURL = "https://pkg.go.dev/github.com/NotrixInc/nx-samp"
)

// DefaultMetadata is what a Proxy declares unless told otherwise.
func DefaultMetadata() Metadata {
	return Metadata{
		MetaName:            "Go Session",
		MetaDescriptionText: "Go SAMP Module",
		MetaClientVersion:   "0.1a",
	}.WithIcon(DefaultIconURL).WithDocumentation(DefaultDocumentationURL)
}

func (m Metadata) Name() string { return m[MetaName] }

// WithDescription sets samp.description.text.
func (m Metadata) WithDescription(text string) Metadata {
	m[MetaDescriptionText] = text
	return m
}

// WithIcon sets samp.icon.url.
func (m Metadata) WithIcon(url string) Metadata {
	m[MetaIconURL] = url
	return m
}

// WithDocumentation sets samp.documentation.url.
func (m Metadata) WithDocumentation(url string) Metadata {
	m[MetaDocumentationURL] = url
	return m
}

// With sets an arbitrary key.
func (m Metadata) With(key, value string) Metadata {
	m[key] = value
	return m
}

// Merge copies non-empty values from other into m.
func (m Metadata) Merge(other Metadata) Metadata {
	for k, v := range other {
		if strings.TrimSpace(v) != "" {
			m[k] = v
		}
	}
	return m
}

// Clone returns a copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m Metadata) wire() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func metadataFromWire(v any) Metadata {
	out := Metadata{}
	raw, _ := v.(map[string]any)
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
