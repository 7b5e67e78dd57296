package domain

import (
	"errors"
	"fmt"
	"strings"
)

// MappingType classifies how a previous-version dimension element relates to
// the candidates extracted from the new source file. The four values are part
// of the public API surface and serialise as their literal names.
type MappingType string

const (
	// MappingTypeAutoMapped marks a machine match by exact key or exact label.
	MappingTypeAutoMapped MappingType = "AutoMapped"
	// MappingTypeAutoNone marks an element the matcher found no candidate for.
	MappingTypeAutoNone MappingType = "AutoNone"
	// MappingTypeManualMapped marks a candidate explicitly assigned by a reviewer.
	MappingTypeManualMapped MappingType = "ManualMapped"
	// MappingTypeManualNone marks a reviewer's confirmation that no candidate matches.
	MappingTypeManualNone MappingType = "ManualNone"
)

// Valid reports whether the value is one of the four known mapping types.
func (t MappingType) Valid() bool {
	switch t {
	case MappingTypeAutoMapped, MappingTypeAutoNone, MappingTypeManualMapped, MappingTypeManualNone:
		return true
	}
	return false
}

// IsMapped reports whether the type carries a candidate reference.
func (t MappingType) IsMapped() bool {
	return t == MappingTypeAutoMapped || t == MappingTypeManualMapped
}

// IsManual reports whether the type was set by a human reviewer.
func (t MappingType) IsManual() bool {
	return t == MappingTypeManualMapped || t == MappingTypeManualNone
}

// Source is the immutable snapshot of a dimension element as it existed in
// the previously published dataset version. It is written once when the
// mapping store is created and never mutated afterwards.
type Source struct {
	Label string
	Code  string // locations only
}

// Candidate is a dimension element discovered in the newly ingested file. It
// carries no public identifier until the version is finalised.
type Candidate struct {
	Key   CandidateKey
	Label string
	Code  string
}

// ErrMappingCorrupt indicates a stored mapping violates the candidate
// reference invariant. It can only arise from a write path that bypassed the
// batch validator, so callers treat it as an unrecoverable defect.
var ErrMappingCorrupt = errors.New("mapping: candidate reference inconsistent with mapping type")

// Mapping ties one previous-version element to its outcome against the new
// candidates. The candidate key is present exactly when the type is a mapped
// variant, and PublicID never changes for the lifetime of the mapping: it is
// the compatibility contract with external API consumers.
type Mapping struct {
	Type         MappingType
	Source       Source
	CandidateKey CandidateKey
	PublicID     string
}

// AutoMapped constructs a machine match referencing the claimed candidate.
func AutoMapped(source Source, publicID string, candidate CandidateKey) Mapping {
	return Mapping{Type: MappingTypeAutoMapped, Source: source, CandidateKey: candidate, PublicID: publicID}
}

// AutoNone constructs the no-match outcome for a source element.
func AutoNone(source Source, publicID string) Mapping {
	return Mapping{Type: MappingTypeAutoNone, Source: source, PublicID: publicID}
}

// Validate checks the candidate reference invariant and the public
// identifier. A stored mapping failing this check is corrupt state.
func (m Mapping) Validate() error {
	if !m.Type.Valid() {
		return fmt.Errorf("mapping: unknown type %q", string(m.Type))
	}
	if strings.TrimSpace(m.PublicID) == "" {
		return errors.New("mapping: public id is required")
	}
	if m.Type.IsMapped() != (m.CandidateKey != "") {
		return ErrMappingCorrupt
	}
	return nil
}

// ApplyManual rewrites the mapping with a reviewer decision, preserving the
// source snapshot and public identifier. The type must be a manual variant
// and the candidate key must agree with it.
func (m *Mapping) ApplyManual(t MappingType, candidate CandidateKey) error {
	if !t.IsManual() {
		return fmt.Errorf("mapping: %q is not a manual mapping type", string(t))
	}
	if t.IsMapped() != (candidate != "") {
		return ErrMappingCorrupt
	}
	m.Type = t
	m.CandidateKey = candidate
	return nil
}

// Reset returns the mapping to an automatic outcome, used when remapping a
// parent filter invalidates its option assignments.
func (m *Mapping) Reset(t MappingType, candidate CandidateKey) error {
	if t != MappingTypeAutoMapped && t != MappingTypeAutoNone {
		return fmt.Errorf("mapping: %q is not an automatic mapping type", string(t))
	}
	if t.IsMapped() != (candidate != "") {
		return ErrMappingCorrupt
	}
	m.Type = t
	m.CandidateKey = candidate
	return nil
}
