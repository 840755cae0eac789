package feature

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var errNoFeatures = errors.New("document has no extracted features")

// Document is the intake record handed over by the extraction and
// classification collaborators, accepted by both the CLI and the server.
type Document struct {
	Features   map[string]string  `json:"features" yaml:"features"`
	Confidence map[string]float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Profile    Profile            `json:"profile" yaml:"profile"`
}

// DecodeDocument reads one intake document and converts it into the
// engine's read-only contracts.
func DecodeDocument(r io.Reader) (Set, Profile, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Set{}, Profile{}, fmt.Errorf("error decoding document: %w", err)
	}
	return doc.Contracts()
}

// Contracts validates the document and returns the immutable feature set
// plus the normalized profile.
func (d Document) Contracts() (Set, Profile, error) {
	if len(d.Features) == 0 {
		return Set{}, Profile{}, errNoFeatures
	}
	return NewSet(d.Features, d.Confidence), d.Profile.Normalize(), nil
}
