package firestore

import (
	"reflect"
	"testing"
	"time"

	domain "github.com/openstats/data-api/internal/domain"
)

func sampleVersionMapping() domain.VersionMapping {
	created := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	return domain.VersionMapping{
		VersionID:         "ver_2",
		PreviousVersionID: "ver_1",
		Locations: domain.LocationsMapping{
			Levels: map[domain.GeographicLevel]domain.LevelMapping{
				"ltla": {
					Candidates: map[domain.CandidateKey]domain.Candidate{
						"E09000003": {Key: "E09000003", Label: "Barnet", Code: "E09000003"},
						"E09000007": {Key: "E09000007", Label: "Camden"},
					},
					Mappings: map[domain.SourceKey]domain.Mapping{
						"E09000003": {
							Type:         domain.MappingTypeAutoMapped,
							Source:       domain.Source{Label: "Barnet", Code: "E09000003"},
							CandidateKey: "E09000003",
							PublicID:     "el_existing",
						},
						"E08000001": {
							Type:     domain.MappingTypeManualNone,
							Source:   domain.Source{Label: "Bolton"},
							PublicID: "el_bolton",
						},
					},
				},
			},
		},
		Filters: domain.FiltersMapping{
			Candidates: map[domain.CandidateKey]domain.FilterCandidate{
				"cand-sex": {
					Key:   "cand-sex",
					Label: "Sex",
					Options: map[domain.CandidateKey]domain.Candidate{
						"cf": {Key: "cf", Label: "Female"},
						"cm": {Key: "cm", Label: "Male"},
					},
				},
			},
			Mappings: map[domain.FilterKey]domain.FilterMapping{
				"sex": {
					Mapping: domain.Mapping{
						Type:         domain.MappingTypeAutoMapped,
						Source:       domain.Source{Label: "Sex"},
						CandidateKey: "cand-sex",
						PublicID:     "el_sex",
					},
					OptionMappings: map[domain.SourceKey]domain.Mapping{
						"f": {
							Type:         domain.MappingTypeManualMapped,
							Source:       domain.Source{Label: "Female"},
							CandidateKey: "cf",
							PublicID:     "el_female",
						},
						"m": {
							Type:     domain.MappingTypeAutoNone,
							Source:   domain.Source{Label: "M"},
							PublicID: "el_male",
						},
					},
				},
			},
		},
		Hierarchy: &domain.FilterHierarchy{
			Tiers: []domain.HierarchyTier{
				{
					Level:          0,
					FilterKey:      "region",
					ChildFilterKey: "ltla",
					Hierarchy: map[domain.SourceKey][]domain.SourceKey{
						"london": {"E09000003", "E09000007"},
					},
				},
			},
		},
		NewElementIDs: map[string]string{
			"location:ltla|E09000007": "el_minted",
		},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}
}

func TestVersionMappingDocumentRoundTrip(t *testing.T) {
	original := sampleVersionMapping()

	doc := encodeVersionMappingDocument(original)
	doc.VersionID = original.VersionID
	decoded := decodeVersionMappingDocument(doc)

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round trip mismatch:\noriginal: %+v\ndecoded:  %+v", original, decoded)
	}
	if err := decoded.Validate(); err != nil {
		t.Fatalf("decoded store failed validation: %v", err)
	}
}

func TestEncodeVersionMappingDocumentUsesPlainKeys(t *testing.T) {
	doc := encodeVersionMappingDocument(sampleVersionMapping())

	level, ok := doc.Levels["ltla"]
	if !ok {
		t.Fatalf("expected ltla level, got %v", doc.Levels)
	}
	if _, ok := level.Mappings["E08000001"]; !ok {
		t.Fatalf("expected source key preserved, got %v", level.Mappings)
	}
	if _, ok := doc.FilterMappings["sex"]; !ok {
		t.Fatalf("expected filter key preserved, got %v", doc.FilterMappings)
	}
	if doc.NewElementIDs["location:ltla|E09000007"] != "el_minted" {
		t.Fatalf("expected minted id preserved, got %v", doc.NewElementIDs)
	}
}

func TestDecodeVersionMappingDocumentNormalisesEmptyCollections(t *testing.T) {
	decoded := decodeVersionMappingDocument(versionMappingDocument{
		VersionID: "ver_9",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	if decoded.VersionID != "ver_9" {
		t.Fatalf("expected version id, got %q", decoded.VersionID)
	}
	if decoded.Locations.Levels == nil || len(decoded.Locations.Levels) != 0 {
		t.Fatalf("expected empty level map, got %v", decoded.Locations.Levels)
	}
	if decoded.Hierarchy != nil {
		t.Fatalf("expected nil hierarchy, got %v", decoded.Hierarchy)
	}
	if err := decoded.Validate(); err != nil {
		t.Fatalf("empty store should validate: %v", err)
	}
}
