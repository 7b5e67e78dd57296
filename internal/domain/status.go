package domain

// MappingStatus is the derived completion projection for a version mapping.
// It is computed on demand and never stored.
type MappingStatus struct {
	LocationsComplete     bool
	FiltersComplete       bool
	Complete              bool
	HasMajorVersionUpdate bool
}

// Status derives the completion state. A dimension is complete when every
// mapping in it resolved to a candidate, automatically or by a reviewer. Any
// None outcome, including an explicit ManualNone, means an existing public
// identifier stops resolving in the next version, which is a breaking change,
// so HasMajorVersionUpdate is exactly the negation of Complete.
func (vm VersionMapping) Status() MappingStatus {
	status := MappingStatus{LocationsComplete: true, FiltersComplete: true}
	for _, lm := range vm.Locations.Levels {
		for _, mapping := range lm.Mappings {
			if !mapping.Type.IsMapped() {
				status.LocationsComplete = false
			}
		}
	}
	for _, fm := range vm.Filters.Mappings {
		if !fm.Type.IsMapped() {
			status.FiltersComplete = false
		}
		for _, option := range fm.OptionMappings {
			if !option.Type.IsMapped() {
				status.FiltersComplete = false
			}
		}
	}
	status.Complete = status.LocationsComplete && status.FiltersComplete
	status.HasMajorVersionUpdate = !status.Complete
	return status
}
