package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LevelMapping holds the candidate pool and the source mappings for a single
// geographic level. Levels never share candidates: a location can only match
// a candidate at the same level.
type LevelMapping struct {
	Candidates map[CandidateKey]Candidate
	Mappings   map[SourceKey]Mapping
}

// LocationsMapping groups location mappings by geographic level.
type LocationsMapping struct {
	Levels map[GeographicLevel]LevelMapping
}

// FilterCandidate is a filter column discovered in the new file together with
// the option pool scoped to it.
type FilterCandidate struct {
	Key     CandidateKey
	Label   string
	Options map[CandidateKey]Candidate
}

// FilterMapping extends Mapping with the nested option mappings. Option
// mappings only carry meaning while the filter itself resolves to a
// candidate; an unresolved filter forces every option to AutoNone.
type FilterMapping struct {
	Mapping
	OptionMappings map[SourceKey]Mapping
}

// FiltersMapping holds the filter candidate pool and the filter mappings for
// a dataset version.
type FiltersMapping struct {
	Candidates map[CandidateKey]FilterCandidate
	Mappings   map[FilterKey]FilterMapping
}

// HierarchyTier describes one parent/child step of a filter hierarchy, for
// example region above local authority. The adjacency map is keyed by source
// option keys, which stay stable across remapping, so tier entries never
// dangle when a reviewer reassigns an option.
type HierarchyTier struct {
	Level          int
	FilterKey      FilterKey
	ChildFilterKey FilterKey
	Hierarchy      map[SourceKey][]SourceKey
}

// FilterHierarchy is the ordered tier list constraining which option
// combinations are valid together. It does not participate in matching.
type FilterHierarchy struct {
	Tiers []HierarchyTier
}

// VersionMapping is the persisted mapping store for one draft dataset
// version. It is created atomically when the candidate matcher runs and is
// only mutated through validated manual update batches.
type VersionMapping struct {
	VersionID         string
	PreviousVersionID string
	Locations         LocationsMapping
	Filters           FiltersMapping
	Hierarchy         *FilterHierarchy

	// NewElementIDs records the public identifiers minted at finalise time
	// for candidates that no previous element claimed, keyed by the
	// qualified candidate key. Minting once keeps finalise idempotent.
	NewElementIDs map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewElementKey qualifies a candidate key with the pool it belongs to so
// minted identifiers for different pools never collide.
func NewElementKey(scope string, key CandidateKey) string {
	return scope + "|" + string(key)
}

// LocationScope returns the new-element scope for a geographic level.
func LocationScope(level GeographicLevel) string {
	return "location:" + string(level)
}

// FilterScope is the new-element scope shared by all filter candidates.
const FilterScope = "filter"

// OptionScope returns the new-element scope for options of one filter candidate.
func OptionScope(filter CandidateKey) string {
	return "option:" + string(filter)
}

// Validate checks every stored mapping against the candidate reference
// invariant. Corruption here means a write path bypassed the validator.
func (vm VersionMapping) Validate() error {
	if strings.TrimSpace(vm.VersionID) == "" {
		return errors.New("version mapping: version id is required")
	}
	for level, lm := range vm.Locations.Levels {
		for key, mapping := range lm.Mappings {
			if err := mapping.Validate(); err != nil {
				return fmt.Errorf("version mapping: level %q source %q: %w", string(level), string(key), err)
			}
			if mapping.CandidateKey != "" {
				if _, ok := lm.Candidates[mapping.CandidateKey]; !ok {
					return fmt.Errorf("version mapping: level %q source %q references unknown candidate %q", string(level), string(key), string(mapping.CandidateKey))
				}
			}
		}
	}
	for key, fm := range vm.Filters.Mappings {
		if err := fm.Validate(); err != nil {
			return fmt.Errorf("version mapping: filter %q: %w", string(key), err)
		}
		var options map[CandidateKey]Candidate
		if fm.CandidateKey != "" {
			candidate, ok := vm.Filters.Candidates[fm.CandidateKey]
			if !ok {
				return fmt.Errorf("version mapping: filter %q references unknown candidate %q", string(key), string(fm.CandidateKey))
			}
			options = candidate.Options
		}
		for optKey, option := range fm.OptionMappings {
			if err := option.Validate(); err != nil {
				return fmt.Errorf("version mapping: filter %q option %q: %w", string(key), string(optKey), err)
			}
			if option.CandidateKey != "" {
				if !fm.Type.IsMapped() {
					return fmt.Errorf("version mapping: filter %q option %q mapped under unresolved filter", string(key), string(optKey))
				}
				if _, ok := options[option.CandidateKey]; !ok {
					return fmt.Errorf("version mapping: filter %q option %q references unknown candidate %q", string(key), string(optKey), string(option.CandidateKey))
				}
			}
		}
	}
	return nil
}

// Clone returns a deep copy so batch validation can work on a scratch state
// and commit by swapping.
func (vm VersionMapping) Clone() VersionMapping {
	out := vm
	out.Locations = LocationsMapping{Levels: make(map[GeographicLevel]LevelMapping, len(vm.Locations.Levels))}
	for level, lm := range vm.Locations.Levels {
		out.Locations.Levels[level] = LevelMapping{
			Candidates: cloneCandidates(lm.Candidates),
			Mappings:   cloneMappings(lm.Mappings),
		}
	}
	out.Filters = FiltersMapping{
		Candidates: make(map[CandidateKey]FilterCandidate, len(vm.Filters.Candidates)),
		Mappings:   make(map[FilterKey]FilterMapping, len(vm.Filters.Mappings)),
	}
	for key, candidate := range vm.Filters.Candidates {
		out.Filters.Candidates[key] = FilterCandidate{
			Key:     candidate.Key,
			Label:   candidate.Label,
			Options: cloneCandidates(candidate.Options),
		}
	}
	for key, fm := range vm.Filters.Mappings {
		out.Filters.Mappings[key] = FilterMapping{
			Mapping:        fm.Mapping,
			OptionMappings: cloneMappings(fm.OptionMappings),
		}
	}
	if vm.Hierarchy != nil {
		hierarchy := FilterHierarchy{Tiers: make([]HierarchyTier, 0, len(vm.Hierarchy.Tiers))}
		for _, tier := range vm.Hierarchy.Tiers {
			cloned := HierarchyTier{
				Level:          tier.Level,
				FilterKey:      tier.FilterKey,
				ChildFilterKey: tier.ChildFilterKey,
				Hierarchy:      make(map[SourceKey][]SourceKey, len(tier.Hierarchy)),
			}
			for parent, children := range tier.Hierarchy {
				copied := make([]SourceKey, len(children))
				copy(copied, children)
				cloned.Hierarchy[parent] = copied
			}
			hierarchy.Tiers = append(hierarchy.Tiers, cloned)
		}
		out.Hierarchy = &hierarchy
	}
	if vm.NewElementIDs != nil {
		out.NewElementIDs = make(map[string]string, len(vm.NewElementIDs))
		for key, id := range vm.NewElementIDs {
			out.NewElementIDs[key] = id
		}
	}
	return out
}

func cloneCandidates(values map[CandidateKey]Candidate) map[CandidateKey]Candidate {
	if values == nil {
		return nil
	}
	out := make(map[CandidateKey]Candidate, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

func cloneMappings(values map[SourceKey]Mapping) map[SourceKey]Mapping {
	if values == nil {
		return nil
	}
	out := make(map[SourceKey]Mapping, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
