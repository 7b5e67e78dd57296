package domain

// Distinct key types guard against mixing identifiers from different
// dimensions: a location source key must never be compared against a filter
// key, and a candidate key only has meaning inside the candidate pool it was
// extracted with.

// GeographicLevel identifies the geographic grouping of a location, for
// example local authority or region. Levels are matched independently.
type GeographicLevel string

// SourceKey identifies a dimension element carried over from the previous
// published dataset version. Source keys are write-once.
type SourceKey string

// CandidateKey identifies a dimension element discovered in the newly
// ingested source file. Candidate keys are only stable within one ingestion.
type CandidateKey string

// FilterKey identifies a filter column carried over from the previous
// published dataset version.
type FilterKey string
