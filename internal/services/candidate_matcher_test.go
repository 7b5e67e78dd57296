package services

import (
	"reflect"
	"testing"

	domain "github.com/openstats/data-api/internal/domain"
)

func TestMatchLevelExactKeyMatch(t *testing.T) {
	lm := MatchLevel(LevelInput{
		Sources:    []SourceInput{{Key: "c1", Label: "Barnet", Code: "BAR", PublicID: "loc-1"}},
		Candidates: []CandidateInput{{Key: "c1", Label: "Barnet", Code: "BAR"}},
	})

	mapping := lm.Mappings["c1"]
	if mapping.Type != domain.MappingTypeAutoMapped || mapping.CandidateKey != "c1" {
		t.Fatalf("expected key match, got %+v", mapping)
	}
	if mapping.PublicID != "loc-1" {
		t.Fatalf("public id not carried over: %+v", mapping)
	}
	if mapping.Source.Label != "Barnet" || mapping.Source.Code != "BAR" {
		t.Fatalf("source snapshot wrong: %+v", mapping)
	}
}

func TestMatchLevelLabelMatchWhenKeyDiffers(t *testing.T) {
	lm := MatchLevel(LevelInput{
		Sources:    []SourceInput{{Key: "old-1", Label: "Barnet", PublicID: "loc-1"}},
		Candidates: []CandidateInput{{Key: "new-9", Label: "Barnet"}},
	})

	mapping := lm.Mappings["old-1"]
	if mapping.Type != domain.MappingTypeAutoMapped || mapping.CandidateKey != "new-9" {
		t.Fatalf("expected label match, got %+v", mapping)
	}
}

func TestMatchLevelLabelMatchIsCaseSensitive(t *testing.T) {
	lm := MatchLevel(LevelInput{
		Sources:    []SourceInput{{Key: "old-1", Label: "Barnet", PublicID: "loc-1"}},
		Candidates: []CandidateInput{{Key: "new-9", Label: "BARNET"}},
	})

	mapping := lm.Mappings["old-1"]
	if mapping.Type != domain.MappingTypeAutoNone || mapping.CandidateKey != "" {
		t.Fatalf("case difference must not match, got %+v", mapping)
	}
}

func TestMatchLevelUnmatchedSourceBecomesAutoNone(t *testing.T) {
	lm := MatchLevel(LevelInput{
		Sources:    []SourceInput{{Key: "old-1", Label: "Year 4", PublicID: "opt-4"}},
		Candidates: []CandidateInput{{Key: "c1", Label: "Year 5"}},
	})

	mapping := lm.Mappings["old-1"]
	if mapping.Type != domain.MappingTypeAutoNone || mapping.CandidateKey != "" {
		t.Fatalf("expected AutoNone, got %+v", mapping)
	}
	if mapping.PublicID != "opt-4" {
		t.Fatalf("public id must be carried even without a match: %+v", mapping)
	}
	if _, ok := lm.Candidates["c1"]; !ok {
		t.Fatal("unclaimed candidate must stay in the pool")
	}
}

func TestMatchLevelLabelTieBreaksOnSmallestKey(t *testing.T) {
	lm := MatchLevel(LevelInput{
		Sources: []SourceInput{{Key: "old-1", Label: "Barnet", PublicID: "loc-1"}},
		Candidates: []CandidateInput{
			{Key: "zz", Label: "Barnet"},
			{Key: "aa", Label: "Barnet"},
			{Key: "mm", Label: "Barnet"},
		},
	})

	if got := lm.Mappings["old-1"].CandidateKey; got != "aa" {
		t.Fatalf("expected smallest key aa, got %q", got)
	}
}

func TestMatchLevelNoDoubleClaim(t *testing.T) {
	lm := MatchLevel(LevelInput{
		Sources: []SourceInput{
			{Key: "s1", Label: "Barnet", PublicID: "loc-1"},
			{Key: "s2", Label: "Barnet", PublicID: "loc-2"},
		},
		Candidates: []CandidateInput{{Key: "c1", Label: "Barnet"}},
	})

	claimed := map[domain.CandidateKey]int{}
	for _, mapping := range lm.Mappings {
		if mapping.CandidateKey != "" {
			claimed[mapping.CandidateKey]++
		}
	}
	if claimed["c1"] != 1 {
		t.Fatalf("candidate claimed %d times", claimed["c1"])
	}
}

func TestMatchLevelKeyMatchBeatsEarlierLabelMatch(t *testing.T) {
	// Source c2 key-matches candidate c2; s1 falls through to a label match
	// on c9 instead of claiming an already-taken candidate.
	lm := MatchLevel(LevelInput{
		Sources: []SourceInput{
			{Key: "s1", Label: "Barnet", PublicID: "loc-1"},
			{Key: "c2", Label: "Camden", PublicID: "loc-2"},
		},
		Candidates: []CandidateInput{
			{Key: "c2", Label: "Camden"},
			{Key: "c9", Label: "Barnet"},
		},
	})

	if got := lm.Mappings["s1"].CandidateKey; got != "c9" {
		t.Fatalf("s1 expected c9, got %q", got)
	}
	if got := lm.Mappings["c2"].CandidateKey; got != "c2" {
		t.Fatalf("c2 expected key match, got %q", got)
	}
}

func TestMatchLevelDeterministic(t *testing.T) {
	input := LevelInput{
		Sources: []SourceInput{
			{Key: "s3", Label: "Barnet", PublicID: "loc-3"},
			{Key: "s1", Label: "Barnet", PublicID: "loc-1"},
			{Key: "s2", Label: "Camden", PublicID: "loc-2"},
		},
		Candidates: []CandidateInput{
			{Key: "c2", Label: "Barnet"},
			{Key: "c1", Label: "Barnet"},
			{Key: "c3", Label: "Camden"},
		},
	}

	first := MatchLevel(input)
	for i := 0; i < 10; i++ {
		if next := MatchLevel(input); !reflect.DeepEqual(first, next) {
			t.Fatalf("run %d differed: %+v vs %+v", i, first, next)
		}
	}
	// Sources are processed in sorted key order, so s1 takes c1 and s3 takes c2.
	if first.Mappings["s1"].CandidateKey != "c1" || first.Mappings["s3"].CandidateKey != "c2" {
		t.Fatalf("unexpected claim order: %+v", first.Mappings)
	}
}

func TestMatchFiltersResolvedFilterMatchesOptions(t *testing.T) {
	fm := MatchFilters(
		[]FilterSourceInput{{
			Key: "sex", Label: "Sex", PublicID: "fil-1",
			Options: []SourceInput{
				{Key: "f", Label: "Female", PublicID: "opt-1"},
				{Key: "m", Label: "Male", PublicID: "opt-2"},
			},
		}},
		[]FilterCandidateInput{{
			Key: "cand-sex", Label: "Sex",
			Options: []CandidateInput{
				{Key: "cf", Label: "Female"},
				{Key: "cm", Label: "Male"},
			},
		}},
	)

	filter := fm.Mappings["sex"]
	if filter.Type != domain.MappingTypeAutoMapped || filter.CandidateKey != "cand-sex" {
		t.Fatalf("filter did not resolve: %+v", filter.Mapping)
	}
	if got := filter.OptionMappings["f"].CandidateKey; got != "cf" {
		t.Fatalf("female option expected cf, got %q", got)
	}
	if got := filter.OptionMappings["m"].CandidateKey; got != "cm" {
		t.Fatalf("male option expected cm, got %q", got)
	}
}

func TestMatchFiltersUnresolvedFilterForcesOptionsNone(t *testing.T) {
	fm := MatchFilters(
		[]FilterSourceInput{{
			Key: "age", Label: "Age", PublicID: "fil-2",
			Options: []SourceInput{{Key: "y4", Label: "Year 4", PublicID: "opt-4"}},
		}},
		[]FilterCandidateInput{{
			Key: "cand-sex", Label: "Sex",
			// The label would match if options were considered on their own.
			Options: []CandidateInput{{Key: "cy4", Label: "Year 4"}},
		}},
	)

	filter := fm.Mappings["age"]
	if filter.Type != domain.MappingTypeAutoNone {
		t.Fatalf("filter should not resolve: %+v", filter.Mapping)
	}
	option := filter.OptionMappings["y4"]
	if option.Type != domain.MappingTypeAutoNone || option.CandidateKey != "" {
		t.Fatalf("options under unresolved filter must be AutoNone, got %+v", option)
	}
	if option.PublicID != "opt-4" {
		t.Fatalf("public id must be carried: %+v", option)
	}
}

func TestMatchFiltersOptionPoolsAreScoped(t *testing.T) {
	fm := MatchFilters(
		[]FilterSourceInput{{
			Key: "sex", Label: "Sex", PublicID: "fil-1",
			Options: []SourceInput{{Key: "f", Label: "Female", PublicID: "opt-1"}},
		}},
		[]FilterCandidateInput{
			{Key: "cand-sex", Label: "Sex", Options: []CandidateInput{{Key: "cf", Label: "Female"}}},
			// Same option label under an unrelated filter must never be claimed.
			{Key: "cand-other", Label: "Other", Options: []CandidateInput{{Key: "xf", Label: "Female"}}},
		},
	)

	if got := fm.Mappings["sex"].OptionMappings["f"].CandidateKey; got != "cf" {
		t.Fatalf("option matched outside its parent's pool: %q", got)
	}
}
