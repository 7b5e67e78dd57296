package domain

import "testing"

func locationsWith(types ...MappingType) LocationsMapping {
	mappings := make(map[SourceKey]Mapping, len(types))
	for i, typ := range types {
		m := Mapping{Type: typ, Source: Source{Label: "loc"}, PublicID: "el_loc"}
		if typ.IsMapped() {
			m.CandidateKey = "k"
		}
		mappings[SourceKey(rune('a'+i))] = m
	}
	return LocationsMapping{Levels: map[GeographicLevel]LevelMapping{"ltla": {Mappings: mappings}}}
}

func TestStatusAllMapped(t *testing.T) {
	vm := VersionMapping{
		VersionID: "ver_1",
		Locations: locationsWith(MappingTypeAutoMapped, MappingTypeManualMapped),
		Filters: FiltersMapping{Mappings: map[FilterKey]FilterMapping{
			"sex": {
				Mapping:        Mapping{Type: MappingTypeManualMapped, Source: Source{Label: "Sex"}, CandidateKey: "f1", PublicID: "el_02"},
				OptionMappings: map[SourceKey]Mapping{"female": {Type: MappingTypeAutoMapped, Source: Source{Label: "Female"}, CandidateKey: "o1", PublicID: "el_03"}},
			},
		}},
	}

	status := vm.Status()
	if !status.LocationsComplete || !status.FiltersComplete || !status.Complete {
		t.Fatalf("expected complete status, got %+v", status)
	}
	if status.HasMajorVersionUpdate {
		t.Fatalf("complete mapping must not flag a major update: %+v", status)
	}
}

func TestStatusAutoNoneLocationBlocksCompletion(t *testing.T) {
	vm := VersionMapping{VersionID: "ver_1", Locations: locationsWith(MappingTypeAutoMapped, MappingTypeAutoNone)}

	status := vm.Status()
	if status.LocationsComplete {
		t.Fatalf("expected incomplete locations, got %+v", status)
	}
	if !status.FiltersComplete {
		t.Fatalf("empty filter set must count as complete, got %+v", status)
	}
	if status.Complete || !status.HasMajorVersionUpdate {
		t.Fatalf("incomplete mapping must flag a major update: %+v", status)
	}
}

func TestStatusManualNoneBlocksCompletion(t *testing.T) {
	vm := VersionMapping{VersionID: "ver_1", Locations: locationsWith(MappingTypeManualNone)}

	status := vm.Status()
	if status.LocationsComplete || status.Complete {
		t.Fatalf("a confirmed non-match still breaks an existing public id, got %+v", status)
	}
	if !status.HasMajorVersionUpdate {
		t.Fatalf("incomplete mapping must flag a major update: %+v", status)
	}
}

func TestStatusAutoNoneOptionBlocksCompletion(t *testing.T) {
	vm := VersionMapping{
		VersionID: "ver_1",
		Filters: FiltersMapping{Mappings: map[FilterKey]FilterMapping{
			"sex": {
				Mapping:        Mapping{Type: MappingTypeAutoMapped, Source: Source{Label: "Sex"}, CandidateKey: "f1", PublicID: "el_02"},
				OptionMappings: map[SourceKey]Mapping{"female": {Type: MappingTypeAutoNone, Source: Source{Label: "Female"}, PublicID: "el_03"}},
			},
		}},
	}

	status := vm.Status()
	if status.FiltersComplete || status.Complete {
		t.Fatalf("expected incomplete filters, got %+v", status)
	}
	if !status.HasMajorVersionUpdate {
		t.Fatalf("incomplete mapping must flag a major update: %+v", status)
	}
}

func TestStatusEmptyMappingIsComplete(t *testing.T) {
	status := (VersionMapping{VersionID: "ver_1"}).Status()
	if !status.Complete || status.HasMajorVersionUpdate {
		t.Fatalf("empty mapping must be complete, got %+v", status)
	}
}
