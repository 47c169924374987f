// Package profile keeps the durable per-identity records and saves them with
// diff-merge upserts.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openmohaa/match-server/internal/models"
)

var (
	ErrNotFound        = errors.New("profile not found")
	ErrCorrupted       = errors.New("stored profile is corrupted")
	ErrRecordNotLoaded = errors.New("profile record not loaded")
)

// Document is a stored profile keyed by top-level field. Values stay raw so
// fields this build does not know about survive a save.
type Document map[string]json.RawMessage

// MergeFunc computes the document to store from the one already stored,
// which is nil when the id is new.
type MergeFunc func(existing Document) Document

// Merge overlays state on existing: {...existing, ...state}.
func Merge(existing, state Document) Document {
	out := make(Document, len(existing)+len(state))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range state {
		out[k] = v
	}
	return out
}

// Overlay returns a MergeFunc applying Merge with state.
func Overlay(state Document) MergeFunc {
	return func(existing Document) Document {
		return Merge(existing, state)
	}
}

// Encode renders the document with sorted keys and compacted values, so equal
// documents always encode to equal bytes.
func (d Document) Encode() ([]byte, error) {
	if d == nil {
		d = Document{}
	}
	return json.Marshal(map[string]json.RawMessage(d))
}

// Decode parses a stored document.
func Decode(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: null document", ErrCorrupted)
	}
	return d, nil
}

// FromProfile converts a profile to its document form.
func FromProfile(p *models.Profile) (Document, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return d, nil
}

// ToProfile reads the known fields out of a document.
func (d Document) ToProfile() (*models.Profile, error) {
	data, err := d.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	p := &models.Profile{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return p, nil
}
