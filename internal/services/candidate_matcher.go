package services

import (
	"sort"

	domain "github.com/openstats/data-api/internal/domain"
)

// The matcher is pure and deterministic: identical input always yields
// identical output. Matching runs independently within each geographic
// level, within the filter set, and within each resolved filter's option
// set. A candidate is claimed at most once per pool.

type claimedSet map[domain.CandidateKey]struct{}

func (c claimedSet) claim(key domain.CandidateKey) { c[key] = struct{}{} }

func (c claimedSet) has(key domain.CandidateKey) bool {
	_, ok := c[key]
	return ok
}

// MatchLevel builds the mapping for one geographic level. Unmatched sources
// become AutoNone; unclaimed candidates stay in the pool as newly introduced
// elements with no mapping of their own.
func MatchLevel(input LevelInput) domain.LevelMapping {
	pool := candidatePool(input.Candidates)
	return domain.LevelMapping{
		Candidates: pool,
		Mappings:   matchSources(input.Sources, pool, make(claimedSet)),
	}
}

// MatchFilters builds the filter mappings and, for every filter that
// resolved, the option mappings against the matched candidate's option set.
// Options of an unresolved filter are forced AutoNone: an option only has
// meaning under a resolved parent.
func MatchFilters(sources []FilterSourceInput, candidates []FilterCandidateInput) domain.FiltersMapping {
	out := domain.FiltersMapping{
		Candidates: make(map[domain.CandidateKey]domain.FilterCandidate, len(candidates)),
		Mappings:   make(map[domain.FilterKey]domain.FilterMapping, len(sources)),
	}
	filterPool := make(map[domain.CandidateKey]domain.Candidate, len(candidates))
	for _, candidate := range candidates {
		out.Candidates[candidate.Key] = domain.FilterCandidate{
			Key:     candidate.Key,
			Label:   candidate.Label,
			Options: candidatePool(candidate.Options),
		}
		filterPool[candidate.Key] = domain.Candidate{Key: candidate.Key, Label: candidate.Label}
	}

	claimed := make(claimedSet)
	for _, source := range sortedFilterSources(sources) {
		mapping := matchOne(SourceInput{
			Key:      domain.SourceKey(source.Key),
			Label:    source.Label,
			PublicID: source.PublicID,
		}, filterPool, claimed)

		fm := domain.FilterMapping{Mapping: mapping}
		if mapping.Type.IsMapped() {
			fm.OptionMappings = MatchOptions(source.Options, out.Candidates[mapping.CandidateKey].Options)
		} else {
			fm.OptionMappings = noneOptions(source.Options)
		}
		out.Mappings[source.Key] = fm
	}
	return out
}

// MatchOptions matches one filter's option sources against the option pool
// of the candidate the filter resolved to.
func MatchOptions(sources []SourceInput, pool map[domain.CandidateKey]domain.Candidate) map[domain.SourceKey]domain.Mapping {
	return matchSources(sources, pool, make(claimedSet))
}

func matchSources(sources []SourceInput, pool map[domain.CandidateKey]domain.Candidate, claimed claimedSet) map[domain.SourceKey]domain.Mapping {
	out := make(map[domain.SourceKey]domain.Mapping, len(sources))
	for _, source := range sortedSources(sources) {
		out[source.Key] = matchOne(source, pool, claimed)
	}
	return out
}

// matchOne tries an exact key match first, then an exact case-sensitive
// label match, both against unclaimed candidates only. The key match is
// preferred because an identical key means the underlying code survived
// unchanged. Label ties break on the lexicographically smallest key.
func matchOne(source SourceInput, pool map[domain.CandidateKey]domain.Candidate, claimed claimedSet) domain.Mapping {
	snapshot := domain.Source{Label: source.Label, Code: source.Code}

	keyMatch := domain.CandidateKey(source.Key)
	if _, ok := pool[keyMatch]; ok && !claimed.has(keyMatch) {
		claimed.claim(keyMatch)
		return domain.AutoMapped(snapshot, source.PublicID, keyMatch)
	}

	for _, key := range sortedCandidateKeys(pool) {
		if claimed.has(key) {
			continue
		}
		if pool[key].Label == source.Label {
			claimed.claim(key)
			return domain.AutoMapped(snapshot, source.PublicID, key)
		}
	}

	return domain.AutoNone(snapshot, source.PublicID)
}

func noneOptions(sources []SourceInput) map[domain.SourceKey]domain.Mapping {
	out := make(map[domain.SourceKey]domain.Mapping, len(sources))
	for _, source := range sources {
		out[source.Key] = domain.AutoNone(domain.Source{Label: source.Label, Code: source.Code}, source.PublicID)
	}
	return out
}

func candidatePool(candidates []CandidateInput) map[domain.CandidateKey]domain.Candidate {
	out := make(map[domain.CandidateKey]domain.Candidate, len(candidates))
	for _, candidate := range candidates {
		out[candidate.Key] = domain.Candidate{Key: candidate.Key, Label: candidate.Label, Code: candidate.Code}
	}
	return out
}

func sortedSources(sources []SourceInput) []SourceInput {
	out := make([]SourceInput, len(sources))
	copy(out, sources)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func sortedFilterSources(sources []FilterSourceInput) []FilterSourceInput {
	out := make([]FilterSourceInput, len(sources))
	copy(out, sources)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func sortedCandidateKeys(pool map[domain.CandidateKey]domain.Candidate) []domain.CandidateKey {
	keys := make([]domain.CandidateKey, 0, len(pool))
	for key := range pool {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
