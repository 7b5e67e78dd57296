package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/openstats/data-api/internal/domain"
	"github.com/openstats/data-api/internal/repositories"
)

// ErrMappingInvalidInput indicates the caller provided invalid data.
var ErrMappingInvalidInput = errors.New("mapping: invalid input")

// ErrMappingNotFound indicates no mapping store exists for the version.
var ErrMappingNotFound = errors.New("mapping: not found")

// ErrMappingExists indicates a mapping store already exists for the version.
var ErrMappingExists = errors.New("mapping: already exists")

// ErrMappingUnavailable indicates the service cannot complete the request due to dependency issues.
var ErrMappingUnavailable = errors.New("mapping: service unavailable")

var (
	errMappingRepositoryRequired = errors.New("mapping: repository is required")
	errMappingClockRequired      = errors.New("mapping: clock is required")
)

const publicElementIDPrefix = "el_"

// UpdateErrorCode identifies why a single update in a batch was rejected.
// The literal values are the wire contract with the admin surface.
type UpdateErrorCode string

const (
	UpdateErrorMappingNotFound        UpdateErrorCode = "MappingNotFound"
	UpdateErrorManualTypeInvalid      UpdateErrorCode = "ManualMappingTypeInvalid"
	UpdateErrorCandidateKeyRequired   UpdateErrorCode = "CandidateKeyMustBeSpecifiedWithMappedMappingType"
	UpdateErrorCandidateKeyNotAllowed UpdateErrorCode = "CandidateKeyMustBeEmptyWithNoneMappingType"
	UpdateErrorCandidateKeyMismatch   UpdateErrorCode = "CandidateKeyLevelMismatch"
)

// MappingUpdateError reports one rejected update, keyed by its position in
// the request list.
type MappingUpdateError struct {
	Index   int
	Code    UpdateErrorCode
	Message string
}

// BatchValidationError carries every rejected update of a batch. The batch
// was not applied: the store is exactly as it was before the call.
type BatchValidationError struct {
	Items []MappingUpdateError
}

func (e *BatchValidationError) Error() string {
	return fmt.Sprintf("mapping: batch rejected with %d invalid update(s)", len(e.Items))
}

// MappingServiceDeps wires the collaborators for mapping operations.
type MappingServiceDeps struct {
	Repository  repositories.MappingRepository
	Audit       AuditLogService
	Events      VersionEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type mappingService struct {
	repo   repositories.MappingRepository
	audit  AuditLogService
	events VersionEventPublisher
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewMappingService constructs a MappingService with the provided dependencies.
func NewMappingService(deps MappingServiceDeps) (MappingService, error) {
	if deps.Repository == nil {
		return nil, errMappingRepositoryRequired
	}

	clock := deps.Clock
	if clock == nil {
		return nil, errMappingClockRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &mappingService{
		repo:   deps.Repository,
		audit:  deps.Audit,
		events: deps.Events,
		now:    func() time.Time { return clock().UTC() },
		newID:  func() string { return publicElementIDPrefix + strings.ToLower(idGen()) },
		logger: logger,
	}, nil
}

// CreateForVersion runs the candidate matcher over the extractor output and
// persists the resulting store. Idempotent per version: a second call for
// the same version returns ErrMappingExists.
func (s *mappingService) CreateForVersion(ctx context.Context, cmd CreateMappingCommand) (VersionMapping, error) {
	if s == nil || s.repo == nil {
		return VersionMapping{}, ErrMappingUnavailable
	}

	versionID := strings.TrimSpace(cmd.VersionID)
	if versionID == "" {
		return VersionMapping{}, ErrMappingInvalidInput
	}

	now := s.now()
	vm := domain.VersionMapping{
		VersionID:         versionID,
		PreviousVersionID: strings.TrimSpace(cmd.PreviousVersionID),
		Locations:         domain.LocationsMapping{Levels: make(map[domain.GeographicLevel]domain.LevelMapping, len(cmd.Locations))},
		Filters:           MatchFilters(cmd.FilterSources, cmd.FilterCandidates),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for level, input := range cmd.Locations {
		if strings.TrimSpace(string(level)) == "" {
			return VersionMapping{}, ErrMappingInvalidInput
		}
		vm.Locations.Levels[level] = MatchLevel(input)
	}
	if len(cmd.Hierarchy) > 0 {
		tiers := make([]domain.HierarchyTier, len(cmd.Hierarchy))
		copy(tiers, cmd.Hierarchy)
		vm.Hierarchy = &domain.FilterHierarchy{Tiers: tiers}
	}

	if err := vm.Validate(); err != nil {
		return VersionMapping{}, fmt.Errorf("%w: %s", ErrMappingInvalidInput, err)
	}

	if err := s.repo.Insert(ctx, vm); err != nil {
		return VersionMapping{}, s.translateRepoError(err)
	}

	s.recordAudit(ctx, cmd.Actor, "mapping.create", versionID, map[string]any{
		"levels":  len(vm.Locations.Levels),
		"filters": len(vm.Filters.Mappings),
	})
	s.publishStatus(ctx, vm, "mapping_created")

	return vm, nil
}

// ApplyLocationUpdates validates the whole batch and commits it in one
// atomic write. Any invalid update rejects the batch with a
// BatchValidationError and leaves the store untouched.
func (s *mappingService) ApplyLocationUpdates(ctx context.Context, cmd BatchLocationUpdatesCommand) (BatchLocationUpdatesResult, error) {
	if s == nil || s.repo == nil {
		return BatchLocationUpdatesResult{}, ErrMappingUnavailable
	}
	versionID := strings.TrimSpace(cmd.VersionID)
	if versionID == "" || len(cmd.Updates) == 0 {
		return BatchLocationUpdatesResult{}, ErrMappingInvalidInput
	}

	var result BatchLocationUpdatesResult
	updated, err := s.repo.Mutate(ctx, versionID, func(vm *domain.VersionMapping) error {
		s.mustBeConsistent(*vm)
		applied := make([]AppliedLocationMapping, 0, len(cmd.Updates))
		var failures []MappingUpdateError

		for idx, update := range cmd.Updates {
			lm, ok := vm.Locations.Levels[update.Level]
			if !ok {
				failures = append(failures, notFoundError(idx, fmt.Sprintf("level %q not found", string(update.Level))))
				continue
			}
			mapping, ok := lm.Mappings[update.SourceKey]
			if !ok {
				failures = append(failures, notFoundError(idx, fmt.Sprintf("source %q not found in level %q", string(update.SourceKey), string(update.Level))))
				continue
			}
			if failure := validateManualUpdate(idx, update.Type, update.CandidateKey, lm.Candidates, locationClaims(lm, update.SourceKey)); failure != nil {
				failures = append(failures, *failure)
				continue
			}
			if err := mapping.ApplyManual(update.Type, update.CandidateKey); err != nil {
				failures = append(failures, MappingUpdateError{Index: idx, Code: UpdateErrorManualTypeInvalid, Message: err.Error()})
				continue
			}
			lm.Mappings[update.SourceKey] = mapping
			applied = append(applied, AppliedLocationMapping{Level: update.Level, SourceKey: update.SourceKey, Mapping: mapping})
		}

		if len(failures) > 0 {
			return &BatchValidationError{Items: failures}
		}
		vm.UpdatedAt = s.now()
		result.Updates = applied
		return nil
	})
	if err != nil {
		return BatchLocationUpdatesResult{}, s.translateBatchError(err)
	}

	result.Status = updated.Status()
	s.recordAudit(ctx, cmd.Actor, "mapping.locations.batch", versionID, map[string]any{"updates": len(cmd.Updates)})
	s.publishStatus(ctx, updated, "locations_batch_applied")
	return result, nil
}

// ApplyFilterUpdates remaps filters themselves. Remapping a filter to a
// different candidate re-runs the matcher over its option set; an explicit
// non-match forces every option to AutoNone.
func (s *mappingService) ApplyFilterUpdates(ctx context.Context, cmd BatchFilterUpdatesCommand) (BatchFilterUpdatesResult, error) {
	if s == nil || s.repo == nil {
		return BatchFilterUpdatesResult{}, ErrMappingUnavailable
	}
	versionID := strings.TrimSpace(cmd.VersionID)
	if versionID == "" || len(cmd.Updates) == 0 {
		return BatchFilterUpdatesResult{}, ErrMappingInvalidInput
	}

	var result BatchFilterUpdatesResult
	updated, err := s.repo.Mutate(ctx, versionID, func(vm *domain.VersionMapping) error {
		s.mustBeConsistent(*vm)
		applied := make([]AppliedFilterMapping, 0, len(cmd.Updates))
		var failures []MappingUpdateError

		for idx, update := range cmd.Updates {
			fm, ok := vm.Filters.Mappings[update.FilterKey]
			if !ok {
				failures = append(failures, notFoundError(idx, fmt.Sprintf("filter %q not found", string(update.FilterKey))))
				continue
			}
			pool := filterCandidatesAsPool(vm.Filters.Candidates)
			if failure := validateManualUpdate(idx, update.Type, update.CandidateKey, pool, filterClaims(vm.Filters, update.FilterKey)); failure != nil {
				failures = append(failures, *failure)
				continue
			}
			previousCandidate := fm.CandidateKey
			if err := fm.Mapping.ApplyManual(update.Type, update.CandidateKey); err != nil {
				failures = append(failures, MappingUpdateError{Index: idx, Code: UpdateErrorManualTypeInvalid, Message: err.Error()})
				continue
			}
			if update.CandidateKey != previousCandidate {
				fm.OptionMappings = rematchOptions(fm, vm.Filters.Candidates, update.CandidateKey)
			}
			vm.Filters.Mappings[update.FilterKey] = fm
			applied = append(applied, AppliedFilterMapping{FilterKey: update.FilterKey, Mapping: fm.Mapping, OptionMappings: fm.OptionMappings})
		}

		if len(failures) > 0 {
			return &BatchValidationError{Items: failures}
		}
		vm.UpdatedAt = s.now()
		result.Updates = applied
		return nil
	})
	if err != nil {
		return BatchFilterUpdatesResult{}, s.translateBatchError(err)
	}

	result.Status = updated.Status()
	s.recordAudit(ctx, cmd.Actor, "mapping.filters.batch", versionID, map[string]any{"updates": len(cmd.Updates)})
	s.publishStatus(ctx, updated, "filters_batch_applied")
	return result, nil
}

// ApplyFilterOptionUpdates remaps options under their parent filters. An
// option update is only accepted while the parent filter resolves to a
// candidate, since the option pool is scoped to that candidate.
func (s *mappingService) ApplyFilterOptionUpdates(ctx context.Context, cmd BatchFilterOptionUpdatesCommand) (BatchFilterOptionUpdatesResult, error) {
	if s == nil || s.repo == nil {
		return BatchFilterOptionUpdatesResult{}, ErrMappingUnavailable
	}
	versionID := strings.TrimSpace(cmd.VersionID)
	if versionID == "" || len(cmd.Updates) == 0 {
		return BatchFilterOptionUpdatesResult{}, ErrMappingInvalidInput
	}

	var result BatchFilterOptionUpdatesResult
	updated, err := s.repo.Mutate(ctx, versionID, func(vm *domain.VersionMapping) error {
		s.mustBeConsistent(*vm)
		applied := make([]AppliedFilterOptionMapping, 0, len(cmd.Updates))
		var failures []MappingUpdateError

		for idx, update := range cmd.Updates {
			fm, ok := vm.Filters.Mappings[update.FilterKey]
			if !ok {
				failures = append(failures, notFoundError(idx, fmt.Sprintf("filter %q not found", string(update.FilterKey))))
				continue
			}
			mapping, ok := fm.OptionMappings[update.SourceKey]
			if !ok {
				failures = append(failures, notFoundError(idx, fmt.Sprintf("option %q not found under filter %q", string(update.SourceKey), string(update.FilterKey))))
				continue
			}
			if !update.Type.Valid() || !update.Type.IsManual() {
				failures = append(failures, MappingUpdateError{
					Index:   idx,
					Code:    UpdateErrorManualTypeInvalid,
					Message: fmt.Sprintf("type %q is not a manual mapping type", string(update.Type)),
				})
				continue
			}
			if !fm.Type.IsMapped() {
				failures = append(failures, MappingUpdateError{
					Index:   idx,
					Code:    UpdateErrorCandidateKeyMismatch,
					Message: fmt.Sprintf("filter %q is not mapped to a candidate, so its options cannot be mapped", string(update.FilterKey)),
				})
				continue
			}
			pool := vm.Filters.Candidates[fm.CandidateKey].Options
			if failure := validateManualUpdate(idx, update.Type, update.CandidateKey, pool, optionClaims(fm, update.SourceKey)); failure != nil {
				failures = append(failures, *failure)
				continue
			}
			if err := mapping.ApplyManual(update.Type, update.CandidateKey); err != nil {
				failures = append(failures, MappingUpdateError{Index: idx, Code: UpdateErrorManualTypeInvalid, Message: err.Error()})
				continue
			}
			fm.OptionMappings[update.SourceKey] = mapping
			applied = append(applied, AppliedFilterOptionMapping{FilterKey: update.FilterKey, SourceKey: update.SourceKey, Mapping: mapping})
		}

		if len(failures) > 0 {
			return &BatchValidationError{Items: failures}
		}
		vm.UpdatedAt = s.now()
		result.Updates = applied
		return nil
	})
	if err != nil {
		return BatchFilterOptionUpdatesResult{}, s.translateBatchError(err)
	}

	result.Status = updated.Status()
	s.recordAudit(ctx, cmd.Actor, "mapping.filter_options.batch", versionID, map[string]any{"updates": len(cmd.Updates)})
	s.publishStatus(ctx, updated, "filter_options_batch_applied")
	return result, nil
}

// GetStatus derives the completion projection for a version. The projection
// is recomputed on every call, never cached.
func (s *mappingService) GetStatus(ctx context.Context, versionID string) (MappingStatusView, error) {
	if s == nil || s.repo == nil {
		return MappingStatusView{}, ErrMappingUnavailable
	}
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return MappingStatusView{}, ErrMappingInvalidInput
	}
	vm, err := s.repo.Get(ctx, versionID)
	if err != nil {
		return MappingStatusView{}, s.translateRepoError(err)
	}
	s.mustBeConsistent(vm)
	return statusView(vm), nil
}

// Finalize returns the publish decision for a draft version and mints public
// identifiers for newly introduced elements. Minted identifiers persist, so
// repeated calls return the same identifiers. Source mappings are not
// touched.
func (s *mappingService) Finalize(ctx context.Context, cmd FinalizeCommand) (FinalizeResult, error) {
	if s == nil || s.repo == nil {
		return FinalizeResult{}, ErrMappingUnavailable
	}
	versionID := strings.TrimSpace(cmd.VersionID)
	if versionID == "" {
		return FinalizeResult{}, ErrMappingInvalidInput
	}

	var result FinalizeResult
	updated, err := s.repo.Mutate(ctx, versionID, func(vm *domain.VersionMapping) error {
		s.mustBeConsistent(*vm)
		if vm.NewElementIDs == nil {
			vm.NewElementIDs = make(map[string]string)
		}
		result.NewElements = s.mintNewElements(vm)
		vm.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return FinalizeResult{}, s.translateRepoError(err)
	}

	result.Status = statusView(updated)
	next, err := nextVersion(cmd.CurrentVersion, result.Status.HasMajorVersionUpdate)
	if err != nil {
		return FinalizeResult{}, err
	}
	result.NextVersion = next

	s.recordAudit(ctx, cmd.Actor, "mapping.finalize", versionID, map[string]any{
		"complete":     result.Status.Complete,
		"next_version": result.NextVersion,
		"new_elements": len(result.NewElements),
	})
	s.publishFinalized(ctx, result)
	return result, nil
}

// DeleteForVersion removes the store when a draft version is discarded.
func (s *mappingService) DeleteForVersion(ctx context.Context, versionID string) error {
	if s == nil || s.repo == nil {
		return ErrMappingUnavailable
	}
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return ErrMappingInvalidInput
	}
	if err := s.repo.Delete(ctx, versionID); err != nil {
		return s.translateRepoError(err)
	}
	s.recordAudit(ctx, "", "mapping.delete", versionID, nil)
	return nil
}

// validateManualUpdate applies the per-update rules shared by all three
// batch shapes. claims holds candidate keys referenced by other mappings in
// the same pool, reflecting updates already applied earlier in the batch.
func validateManualUpdate(idx int, typ domain.MappingType, candidate domain.CandidateKey, pool map[domain.CandidateKey]domain.Candidate, claims map[domain.CandidateKey]struct{}) *MappingUpdateError {
	if !typ.Valid() || !typ.IsManual() {
		return &MappingUpdateError{
			Index:   idx,
			Code:    UpdateErrorManualTypeInvalid,
			Message: fmt.Sprintf("type %q is not a manual mapping type", string(typ)),
		}
	}
	switch typ {
	case domain.MappingTypeManualMapped:
		if candidate == "" {
			return &MappingUpdateError{
				Index:   idx,
				Code:    UpdateErrorCandidateKeyRequired,
				Message: "candidateKey is required when type is ManualMapped",
			}
		}
		if _, ok := pool[candidate]; !ok {
			return &MappingUpdateError{
				Index:   idx,
				Code:    UpdateErrorCandidateKeyMismatch,
				Message: fmt.Sprintf("candidate %q does not exist in the applicable candidate pool", string(candidate)),
			}
		}
		if _, taken := claims[candidate]; taken {
			return &MappingUpdateError{
				Index:   idx,
				Code:    UpdateErrorCandidateKeyRequired,
				Message: fmt.Sprintf("candidate %q is already claimed by another mapping", string(candidate)),
			}
		}
	case domain.MappingTypeManualNone:
		if candidate != "" {
			return &MappingUpdateError{
				Index:   idx,
				Code:    UpdateErrorCandidateKeyNotAllowed,
				Message: "candidateKey must be empty when type is ManualNone",
			}
		}
	}
	return nil
}

func notFoundError(idx int, message string) MappingUpdateError {
	return MappingUpdateError{Index: idx, Code: UpdateErrorMappingNotFound, Message: message}
}

// locationClaims collects candidate keys held by mappings other than the one
// being updated, so a candidate released earlier in the batch is reclaimable.
func locationClaims(lm domain.LevelMapping, exclude domain.SourceKey) map[domain.CandidateKey]struct{} {
	claims := make(map[domain.CandidateKey]struct{}, len(lm.Mappings))
	for key, mapping := range lm.Mappings {
		if key == exclude || mapping.CandidateKey == "" {
			continue
		}
		claims[mapping.CandidateKey] = struct{}{}
	}
	return claims
}

func filterClaims(filters domain.FiltersMapping, exclude domain.FilterKey) map[domain.CandidateKey]struct{} {
	claims := make(map[domain.CandidateKey]struct{}, len(filters.Mappings))
	for key, fm := range filters.Mappings {
		if key == exclude || fm.CandidateKey == "" {
			continue
		}
		claims[fm.CandidateKey] = struct{}{}
	}
	return claims
}

func optionClaims(fm domain.FilterMapping, exclude domain.SourceKey) map[domain.CandidateKey]struct{} {
	claims := make(map[domain.CandidateKey]struct{}, len(fm.OptionMappings))
	for key, mapping := range fm.OptionMappings {
		if key == exclude || mapping.CandidateKey == "" {
			continue
		}
		claims[mapping.CandidateKey] = struct{}{}
	}
	return claims
}

func filterCandidatesAsPool(candidates map[domain.CandidateKey]domain.FilterCandidate) map[domain.CandidateKey]domain.Candidate {
	pool := make(map[domain.CandidateKey]domain.Candidate, len(candidates))
	for key, candidate := range candidates {
		pool[key] = domain.Candidate{Key: candidate.Key, Label: candidate.Label}
	}
	return pool
}

// rematchOptions rebuilds a filter's option mappings after the filter itself
// moved to a different candidate. Source snapshots and public identifiers
// survive; assignments are recomputed against the new candidate's options.
func rematchOptions(fm domain.FilterMapping, candidates map[domain.CandidateKey]domain.FilterCandidate, target domain.CandidateKey) map[domain.SourceKey]domain.Mapping {
	sources := make([]SourceInput, 0, len(fm.OptionMappings))
	for key, mapping := range fm.OptionMappings {
		sources = append(sources, SourceInput{
			Key:      key,
			Label:    mapping.Source.Label,
			Code:     mapping.Source.Code,
			PublicID: mapping.PublicID,
		})
	}
	if target == "" {
		return noneOptions(sources)
	}
	return MatchOptions(sources, candidates[target].Options)
}

func (s *mappingService) mintNewElements(vm *domain.VersionMapping) []NewElement {
	var out []NewElement

	mint := func(scope string, candidate domain.Candidate) {
		key := domain.NewElementKey(scope, candidate.Key)
		id, ok := vm.NewElementIDs[key]
		if !ok {
			id = s.newID()
			vm.NewElementIDs[key] = id
		}
		out = append(out, NewElement{
			Scope:        scope,
			CandidateKey: candidate.Key,
			Label:        candidate.Label,
			Code:         candidate.Code,
			PublicID:     id,
		})
	}

	for _, level := range sortedLevels(vm.Locations.Levels) {
		lm := vm.Locations.Levels[level]
		claims := locationClaims(lm, "")
		for _, key := range sortedCandidateKeys(lm.Candidates) {
			if _, taken := claims[key]; !taken {
				mint(domain.LocationScope(level), lm.Candidates[key])
			}
		}
	}

	filterClaimSet := filterClaims(vm.Filters, "")
	optionClaimsByCandidate := make(map[domain.CandidateKey]map[domain.CandidateKey]struct{})
	for _, fm := range vm.Filters.Mappings {
		if fm.CandidateKey != "" {
			optionClaimsByCandidate[fm.CandidateKey] = optionClaims(fm, "")
		}
	}
	for _, key := range sortedFilterCandidateKeys(vm.Filters.Candidates) {
		candidate := vm.Filters.Candidates[key]
		if _, taken := filterClaimSet[key]; !taken {
			mint(domain.FilterScope, domain.Candidate{Key: candidate.Key, Label: candidate.Label})
		}
		claims := optionClaimsByCandidate[key]
		for _, optKey := range sortedCandidateKeys(candidate.Options) {
			if _, taken := claims[optKey]; !taken {
				mint(domain.OptionScope(key), candidate.Options[optKey])
			}
		}
	}

	return out
}

func sortedLevels(levels map[domain.GeographicLevel]domain.LevelMapping) []domain.GeographicLevel {
	out := make([]domain.GeographicLevel, 0, len(levels))
	for level := range levels {
		out = append(out, level)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedFilterCandidateKeys(candidates map[domain.CandidateKey]domain.FilterCandidate) []domain.CandidateKey {
	out := make([]domain.CandidateKey, 0, len(candidates))
	for key := range candidates {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// nextVersion suggests the next semantic version: a major bump when the
// mapping is incomplete, a minor bump otherwise.
func nextVersion(current string, major bool) (string, error) {
	current = strings.TrimSpace(current)
	if current == "" {
		return "1.0", nil
	}
	parts := strings.SplitN(current, ".", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: version %q is not major.minor", ErrMappingInvalidInput, current)
	}
	majorN, err := strconv.Atoi(parts[0])
	if err != nil || majorN < 0 {
		return "", fmt.Errorf("%w: version %q is not major.minor", ErrMappingInvalidInput, current)
	}
	minorN, err := strconv.Atoi(parts[1])
	if err != nil || minorN < 0 {
		return "", fmt.Errorf("%w: version %q is not major.minor", ErrMappingInvalidInput, current)
	}
	if major {
		return fmt.Sprintf("%d.0", majorN+1), nil
	}
	return fmt.Sprintf("%d.%d", majorN, minorN+1), nil
}

func statusView(vm domain.VersionMapping) MappingStatusView {
	status := vm.Status()
	return MappingStatusView{
		VersionID:             vm.VersionID,
		LocationsComplete:     status.LocationsComplete,
		FiltersComplete:       status.FiltersComplete,
		Complete:              status.Complete,
		HasMajorVersionUpdate: status.HasMajorVersionUpdate,
		UpdatedAt:             vm.UpdatedAt,
	}
}

// mustBeConsistent panics when stored state violates the candidate reference
// invariant. Such state can only come from a write path that bypassed the
// batch validator and must never be silently repaired.
func (s *mappingService) mustBeConsistent(vm domain.VersionMapping) {
	if err := vm.Validate(); err != nil {
		panic(fmt.Sprintf("mapping store corrupt for version %s: %v", vm.VersionID, err))
	}
}

func (s *mappingService) translateBatchError(err error) error {
	var batchErr *BatchValidationError
	if errors.As(err, &batchErr) {
		return batchErr
	}
	return s.translateRepoError(err)
}

func (s *mappingService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrMappingNotFound
		case repoErr.IsConflict():
			return ErrMappingExists
		}
	}
	return ErrMappingUnavailable
}

func (s *mappingService) recordAudit(ctx context.Context, actor, action, versionID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:     actor,
		Action:    action,
		TargetRef: "/versions/" + versionID + "/mapping",
		Metadata:  metadata,
	})
}

func (s *mappingService) publishStatus(ctx context.Context, vm domain.VersionMapping, trigger string) {
	if s.events == nil {
		return
	}
	event := MappingStatusEvent{
		VersionID: vm.VersionID,
		Status:    statusView(vm),
		Trigger:   trigger,
		EmittedAt: s.now(),
	}
	if err := s.events.PublishMappingStatus(ctx, event); err != nil {
		s.logger(ctx, "mapping.status_event_failed", map[string]any{
			"version_id": vm.VersionID,
			"trigger":    trigger,
			"error":      err.Error(),
		})
	}
}

func (s *mappingService) publishFinalized(ctx context.Context, result FinalizeResult) {
	if s.events == nil {
		return
	}
	event := VersionFinalizedEvent{
		VersionID:   result.Status.VersionID,
		NextVersion: result.NextVersion,
		Status:      result.Status,
		NewElements: result.NewElements,
		EmittedAt:   s.now(),
	}
	if err := s.events.PublishVersionFinalized(ctx, event); err != nil {
		s.logger(ctx, "mapping.finalized_event_failed", map[string]any{
			"version_id": result.Status.VersionID,
			"error":      err.Error(),
		})
	}
}
