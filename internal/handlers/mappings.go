package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/openstats/data-api/internal/domain"
	"github.com/openstats/data-api/internal/platform/httpx"
	"github.com/openstats/data-api/internal/platform/requestctx"
	"github.com/openstats/data-api/internal/services"
)

// MappingHandlers exposes the mapping store lifecycle over HTTP: creation and
// deletion for the ingestion pipeline, reviewer batches and status reads for
// the admin surface, and the finalise decision for the publish workflow.
type MappingHandlers struct {
	service    services.MappingService
	maxUpdates int
	maxBody    int64
}

// MappingOption customises the mapping handler set.
type MappingOption func(*MappingHandlers)

// WithMappingService wires the mapping service implementation.
func WithMappingService(svc services.MappingService) MappingOption {
	return func(h *MappingHandlers) {
		h.service = svc
	}
}

// WithMappingLimits bounds batch sizes and request body bytes.
func WithMappingLimits(maxUpdates int, maxBody int64) MappingOption {
	return func(h *MappingHandlers) {
		if maxUpdates > 0 {
			h.maxUpdates = maxUpdates
		}
		if maxBody > 0 {
			h.maxBody = maxBody
		}
	}
}

// NewMappingHandlers constructs the mapping handler set.
func NewMappingHandlers(opts ...MappingOption) *MappingHandlers {
	h := &MappingHandlers{maxBody: defaultMaxRequestBody}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// RegisterAdminRoutes mounts the reviewer-facing endpoints.
func (h *MappingHandlers) RegisterAdminRoutes(r chi.Router) {
	r.Post("/versions/{versionId}/mapping/locations", h.ApplyLocationUpdates)
	r.Post("/versions/{versionId}/mapping/filters", h.ApplyFilterUpdates)
	r.Post("/versions/{versionId}/mapping/filter-options", h.ApplyFilterOptionUpdates)
	r.Get("/versions/{versionId}/mapping/status", h.GetStatus)
}

// RegisterInternalRoutes mounts the pipeline-facing endpoints.
func (h *MappingHandlers) RegisterInternalRoutes(r chi.Router) {
	r.Put("/versions/{versionId}/mapping", h.CreateMapping)
	r.Delete("/versions/{versionId}/mapping", h.DeleteMapping)
	r.Post("/versions/{versionId}/mapping:finalize", h.FinalizeVersion)
}

type sourceElementPayload struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Code     string `json:"code,omitempty"`
	PublicID string `json:"publicId"`
}

type candidateElementPayload struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Code  string `json:"code,omitempty"`
}

type levelInputPayload struct {
	Sources    []sourceElementPayload    `json:"sources"`
	Candidates []candidateElementPayload `json:"candidates"`
}

type filterSourcePayload struct {
	Key      string                 `json:"key"`
	Label    string                 `json:"label"`
	PublicID string                 `json:"publicId"`
	Options  []sourceElementPayload `json:"options"`
}

type filterCandidatePayload struct {
	Key     string                    `json:"key"`
	Label   string                    `json:"label"`
	Options []candidateElementPayload `json:"options"`
}

type hierarchyTierPayload struct {
	Level          int                 `json:"level"`
	FilterKey      string              `json:"filterKey"`
	ChildFilterKey string              `json:"childFilterKey,omitempty"`
	Hierarchy      map[string][]string `json:"hierarchy,omitempty"`
}

type createMappingRequest struct {
	PreviousVersionID string                       `json:"previousVersionId"`
	Locations         map[string]levelInputPayload `json:"locations"`
	FilterSources     []filterSourcePayload        `json:"filterSources"`
	FilterCandidates  []filterCandidatePayload     `json:"filterCandidates"`
	Hierarchy         []hierarchyTierPayload       `json:"hierarchy"`
}

type locationUpdatePayload struct {
	Level        string `json:"level"`
	SourceKey    string `json:"sourceKey"`
	CandidateKey string `json:"candidateKey,omitempty"`
	MappingType  string `json:"type"`
}

type batchLocationUpdatesRequest struct {
	Updates []locationUpdatePayload `json:"updates"`
}

type filterUpdatePayload struct {
	FilterKey    string `json:"filterKey"`
	CandidateKey string `json:"candidateKey,omitempty"`
	MappingType  string `json:"type"`
}

type batchFilterUpdatesRequest struct {
	Updates []filterUpdatePayload `json:"updates"`
}

type filterOptionUpdatePayload struct {
	FilterKey    string `json:"filterKey"`
	SourceKey    string `json:"sourceKey"`
	CandidateKey string `json:"candidateKey,omitempty"`
	MappingType  string `json:"type"`
}

type batchFilterOptionUpdatesRequest struct {
	Updates []filterOptionUpdatePayload `json:"updates"`
}

type mappingPayload struct {
	Type         string `json:"type"`
	SourceLabel  string `json:"sourceLabel"`
	SourceCode   string `json:"sourceCode,omitempty"`
	CandidateKey string `json:"candidateKey,omitempty"`
	PublicID     string `json:"publicId"`
}

type filterMappingPayload struct {
	Mapping        mappingPayload            `json:"mapping"`
	OptionMappings map[string]mappingPayload `json:"optionMappings,omitempty"`
}

type mappingStatusPayload struct {
	VersionID             string `json:"versionId"`
	LocationsComplete     bool   `json:"locationsComplete"`
	FiltersComplete       bool   `json:"filtersComplete"`
	Complete              bool   `json:"complete"`
	HasMajorVersionUpdate bool   `json:"hasMajorVersionUpdate"`
	UpdatedAt             string `json:"updatedAt,omitempty"`
}

type levelStatePayload struct {
	Candidates []candidateElementPayload `json:"candidates"`
	Mappings   map[string]mappingPayload `json:"mappings"`
}

type filtersStatePayload struct {
	Candidates []filterCandidatePayload        `json:"candidates"`
	Mappings   map[string]filterMappingPayload `json:"mappings"`
}

type versionMappingResponse struct {
	VersionID         string                       `json:"versionId"`
	PreviousVersionID string                       `json:"previousVersionId,omitempty"`
	Locations         map[string]levelStatePayload `json:"locations"`
	Filters           filtersStatePayload          `json:"filters"`
	Status            mappingStatusPayload         `json:"status"`
	CreatedAt         string                       `json:"createdAt,omitempty"`
	UpdatedAt         string                       `json:"updatedAt,omitempty"`
}

type appliedLocationMappingPayload struct {
	Level     string         `json:"level"`
	SourceKey string         `json:"sourceKey"`
	Mapping   mappingPayload `json:"mapping"`
}

type batchLocationUpdatesResponse struct {
	Updates []appliedLocationMappingPayload `json:"updates"`
	Status  mappingStatusPayload            `json:"status"`
}

type appliedFilterMappingPayload struct {
	FilterKey      string                    `json:"filterKey"`
	Mapping        mappingPayload            `json:"mapping"`
	OptionMappings map[string]mappingPayload `json:"optionMappings,omitempty"`
}

type batchFilterUpdatesResponse struct {
	Updates []appliedFilterMappingPayload `json:"updates"`
	Status  mappingStatusPayload          `json:"status"`
}

type appliedFilterOptionMappingPayload struct {
	FilterKey string         `json:"filterKey"`
	SourceKey string         `json:"sourceKey"`
	Mapping   mappingPayload `json:"mapping"`
}

type batchFilterOptionUpdatesResponse struct {
	Updates []appliedFilterOptionMappingPayload `json:"updates"`
	Status  mappingStatusPayload                `json:"status"`
}

type finalizeVersionRequest struct {
	CurrentVersion string `json:"currentVersion"`
}

type newElementPayload struct {
	Scope        string `json:"scope"`
	CandidateKey string `json:"candidateKey"`
	Label        string `json:"label"`
	Code         string `json:"code,omitempty"`
	PublicID     string `json:"publicId"`
}

type finalizeVersionResponse struct {
	Status      mappingStatusPayload `json:"status"`
	NextVersion string               `json:"nextVersion"`
	NewElements []newElementPayload  `json:"newElements"`
}

// CreateMapping runs the candidate matcher for a draft version and persists
// the resulting store. The operation is idempotent per version: a repeat call
// for the same version identifier yields a conflict.
func (h *MappingHandlers) CreateMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	versionID, ok := h.versionID(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, h.maxBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createMappingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.CreateMappingCommand{
		VersionID:         versionID,
		PreviousVersionID: strings.TrimSpace(req.PreviousVersionID),
		Hierarchy:         decodeHierarchyTiers(req.Hierarchy),
		Actor:             requestctx.Actor(ctx),
	}
	if len(req.Locations) > 0 {
		cmd.Locations = make(map[services.GeographicLevel]services.LevelInput, len(req.Locations))
		for level, input := range req.Locations {
			cmd.Locations[services.GeographicLevel(level)] = services.LevelInput{
				Sources:    decodeSourceInputs(input.Sources),
				Candidates: decodeCandidateInputs(input.Candidates),
			}
		}
	}
	for _, source := range req.FilterSources {
		cmd.FilterSources = append(cmd.FilterSources, services.FilterSourceInput{
			Key:      services.FilterKey(source.Key),
			Label:    source.Label,
			PublicID: source.PublicID,
			Options:  decodeSourceInputs(source.Options),
		})
	}
	for _, candidate := range req.FilterCandidates {
		cmd.FilterCandidates = append(cmd.FilterCandidates, services.FilterCandidateInput{
			Key:     services.CandidateKey(candidate.Key),
			Label:   candidate.Label,
			Options: decodeCandidateInputs(candidate.Options),
		})
	}

	mapping, err := h.service.CreateForVersion(ctx, cmd)
	if err != nil {
		writeMappingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, renderVersionMapping(mapping))
}

// DeleteMapping removes the store for an abandoned draft version.
func (h *MappingHandlers) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	versionID, ok := h.versionID(ctx, w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteForVersion(ctx, versionID); err != nil {
		writeMappingError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApplyLocationUpdates applies one reviewer batch of location decisions. The
// batch commits as a whole or not at all.
func (h *MappingHandlers) ApplyLocationUpdates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	versionID, ok := h.versionID(ctx, w, r)
	if !ok {
		return
	}

	var req batchLocationUpdatesRequest
	if !h.decodeBatchRequest(ctx, w, r, &req, func() int { return len(req.Updates) }) {
		return
	}

	cmd := services.BatchLocationUpdatesCommand{
		VersionID: versionID,
		Updates:   make([]services.LocationMappingUpdate, 0, len(req.Updates)),
		Actor:     requestctx.Actor(ctx),
	}
	for _, update := range req.Updates {
		cmd.Updates = append(cmd.Updates, services.LocationMappingUpdate{
			Level:        services.GeographicLevel(update.Level),
			SourceKey:    services.SourceKey(update.SourceKey),
			CandidateKey: services.CandidateKey(update.CandidateKey),
			Type:         services.MappingType(update.MappingType),
		})
	}

	result, err := h.service.ApplyLocationUpdates(ctx, cmd)
	if err != nil {
		writeMappingError(ctx, w, err)
		return
	}

	resp := batchLocationUpdatesResponse{
		Updates: make([]appliedLocationMappingPayload, 0, len(result.Updates)),
		Status:  statusPayloadFromDomain(versionID, result.Status),
	}
	for _, applied := range result.Updates {
		resp.Updates = append(resp.Updates, appliedLocationMappingPayload{
			Level:     string(applied.Level),
			SourceKey: string(applied.SourceKey),
			Mapping:   renderMapping(applied.Mapping),
		})
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// ApplyFilterUpdates applies one reviewer batch of filter decisions. Remapping
// a filter resets its option mappings, and the reset outcomes are echoed back.
func (h *MappingHandlers) ApplyFilterUpdates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	versionID, ok := h.versionID(ctx, w, r)
	if !ok {
		return
	}

	var req batchFilterUpdatesRequest
	if !h.decodeBatchRequest(ctx, w, r, &req, func() int { return len(req.Updates) }) {
		return
	}

	cmd := services.BatchFilterUpdatesCommand{
		VersionID: versionID,
		Updates:   make([]services.FilterMappingUpdate, 0, len(req.Updates)),
		Actor:     requestctx.Actor(ctx),
	}
	for _, update := range req.Updates {
		cmd.Updates = append(cmd.Updates, services.FilterMappingUpdate{
			FilterKey:    services.FilterKey(update.FilterKey),
			CandidateKey: services.CandidateKey(update.CandidateKey),
			Type:         services.MappingType(update.MappingType),
		})
	}

	result, err := h.service.ApplyFilterUpdates(ctx, cmd)
	if err != nil {
		writeMappingError(ctx, w, err)
		return
	}

	resp := batchFilterUpdatesResponse{
		Updates: make([]appliedFilterMappingPayload, 0, len(result.Updates)),
		Status:  statusPayloadFromDomain(versionID, result.Status),
	}
	for _, applied := range result.Updates {
		resp.Updates = append(resp.Updates, appliedFilterMappingPayload{
			FilterKey:      string(applied.FilterKey),
			Mapping:        renderMapping(applied.Mapping),
			OptionMappings: renderMappingsByKey(applied.OptionMappings),
		})
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// ApplyFilterOptionUpdates applies one reviewer batch of option decisions
// scoped to their parent filters.
func (h *MappingHandlers) ApplyFilterOptionUpdates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	versionID, ok := h.versionID(ctx, w, r)
	if !ok {
		return
	}

	var req batchFilterOptionUpdatesRequest
	if !h.decodeBatchRequest(ctx, w, r, &req, func() int { return len(req.Updates) }) {
		return
	}

	cmd := services.BatchFilterOptionUpdatesCommand{
		VersionID: versionID,
		Updates:   make([]services.FilterOptionMappingUpdate, 0, len(req.Updates)),
		Actor:     requestctx.Actor(ctx),
	}
	for _, update := range req.Updates {
		cmd.Updates = append(cmd.Updates, services.FilterOptionMappingUpdate{
			FilterKey:    services.FilterKey(update.FilterKey),
			SourceKey:    services.SourceKey(update.SourceKey),
			CandidateKey: services.CandidateKey(update.CandidateKey),
			Type:         services.MappingType(update.MappingType),
		})
	}

	result, err := h.service.ApplyFilterOptionUpdates(ctx, cmd)
	if err != nil {
		writeMappingError(ctx, w, err)
		return
	}

	resp := batchFilterOptionUpdatesResponse{
		Updates: make([]appliedFilterOptionMappingPayload, 0, len(result.Updates)),
		Status:  statusPayloadFromDomain(versionID, result.Status),
	}
	for _, applied := range result.Updates {
		resp.Updates = append(resp.Updates, appliedFilterOptionMappingPayload{
			FilterKey: string(applied.FilterKey),
			SourceKey: string(applied.SourceKey),
			Mapping:   renderMapping(applied.Mapping),
		})
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// GetStatus reports the derived completion projection for a draft version.
func (h *MappingHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	versionID, ok := h.versionID(ctx, w, r)
	if !ok {
		return
	}

	view, err := h.service.GetStatus(ctx, versionID)
	if err != nil {
		writeMappingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, statusPayloadFromView(view))
}

// FinalizeVersion computes the publish decision for a draft version and mints
// public identifiers for unclaimed candidates. Safe to retry: identifiers are
// minted at most once per candidate.
func (h *MappingHandlers) FinalizeVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	versionID, ok := h.versionID(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, h.maxBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req finalizeVersionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.service.Finalize(ctx, services.FinalizeCommand{
		VersionID:      versionID,
		CurrentVersion: strings.TrimSpace(req.CurrentVersion),
		Actor:          requestctx.Actor(ctx),
	})
	if err != nil {
		writeMappingError(ctx, w, err)
		return
	}

	resp := finalizeVersionResponse{
		Status:      statusPayloadFromView(result.Status),
		NextVersion: result.NextVersion,
		NewElements: make([]newElementPayload, 0, len(result.NewElements)),
	}
	for _, element := range result.NewElements {
		resp.NewElements = append(resp.NewElements, newElementPayload{
			Scope:        element.Scope,
			CandidateKey: string(element.CandidateKey),
			Label:        element.Label,
			Code:         element.Code,
			PublicID:     element.PublicID,
		})
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *MappingHandlers) versionID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	versionID := strings.TrimSpace(chi.URLParam(r, "versionId"))
	if versionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "version id is required", http.StatusBadRequest))
		return "", false
	}
	return versionID, true
}

func (h *MappingHandlers) decodeBatchRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, target any, count func() int) bool {
	body, err := readLimitedBody(r, h.maxBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	n := count()
	if n == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one update is required", http.StatusBadRequest))
		return false
	}
	if h.maxUpdates > 0 && n > h.maxUpdates {
		httpx.WriteError(ctx, w, httpx.NewError("batch_too_large", "too many updates in one batch", http.StatusBadRequest))
		return false
	}
	return true
}

func decodeSourceInputs(payloads []sourceElementPayload) []services.SourceInput {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]services.SourceInput, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, services.SourceInput{
			Key:      services.SourceKey(p.Key),
			Label:    p.Label,
			Code:     p.Code,
			PublicID: p.PublicID,
		})
	}
	return out
}

func decodeCandidateInputs(payloads []candidateElementPayload) []services.CandidateInput {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]services.CandidateInput, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, services.CandidateInput{
			Key:   services.CandidateKey(p.Key),
			Label: p.Label,
			Code:  p.Code,
		})
	}
	return out
}

func decodeHierarchyTiers(payloads []hierarchyTierPayload) []services.HierarchyTier {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]services.HierarchyTier, 0, len(payloads))
	for _, p := range payloads {
		tier := services.HierarchyTier{
			Level:          p.Level,
			FilterKey:      services.FilterKey(p.FilterKey),
			ChildFilterKey: services.FilterKey(p.ChildFilterKey),
		}
		if len(p.Hierarchy) > 0 {
			tier.Hierarchy = make(map[domain.SourceKey][]domain.SourceKey, len(p.Hierarchy))
			for parent, children := range p.Hierarchy {
				keys := make([]domain.SourceKey, 0, len(children))
				for _, child := range children {
					keys = append(keys, domain.SourceKey(child))
				}
				tier.Hierarchy[domain.SourceKey(parent)] = keys
			}
		}
		out = append(out, tier)
	}
	return out
}

func renderMapping(m domain.Mapping) mappingPayload {
	return mappingPayload{
		Type:         string(m.Type),
		SourceLabel:  m.Source.Label,
		SourceCode:   m.Source.Code,
		CandidateKey: string(m.CandidateKey),
		PublicID:     m.PublicID,
	}
}

func renderMappingsByKey(mappings map[domain.SourceKey]domain.Mapping) map[string]mappingPayload {
	if len(mappings) == 0 {
		return nil
	}
	out := make(map[string]mappingPayload, len(mappings))
	for key, m := range mappings {
		out[string(key)] = renderMapping(m)
	}
	return out
}

func renderVersionMapping(vm domain.VersionMapping) versionMappingResponse {
	resp := versionMappingResponse{
		VersionID:         vm.VersionID,
		PreviousVersionID: vm.PreviousVersionID,
		Locations:         make(map[string]levelStatePayload, len(vm.Locations.Levels)),
		Filters: filtersStatePayload{
			Candidates: make([]filterCandidatePayload, 0, len(vm.Filters.Candidates)),
			Mappings:   make(map[string]filterMappingPayload, len(vm.Filters.Mappings)),
		},
		Status:    statusPayloadFromDomain(vm.VersionID, vm.Status()),
		CreatedAt: formatTime(vm.CreatedAt),
		UpdatedAt: formatTime(vm.UpdatedAt),
	}
	resp.Status.UpdatedAt = formatTime(vm.UpdatedAt)

	for level, lm := range vm.Locations.Levels {
		state := levelStatePayload{
			Candidates: renderCandidatePool(lm.Candidates),
			Mappings:   make(map[string]mappingPayload, len(lm.Mappings)),
		}
		for key, m := range lm.Mappings {
			state.Mappings[string(key)] = renderMapping(m)
		}
		resp.Locations[string(level)] = state
	}

	for _, candidate := range vm.Filters.Candidates {
		resp.Filters.Candidates = append(resp.Filters.Candidates, filterCandidatePayload{
			Key:     string(candidate.Key),
			Label:   candidate.Label,
			Options: renderCandidatePool(candidate.Options),
		})
	}
	sort.Slice(resp.Filters.Candidates, func(i, j int) bool {
		return resp.Filters.Candidates[i].Key < resp.Filters.Candidates[j].Key
	})
	for key, fm := range vm.Filters.Mappings {
		resp.Filters.Mappings[string(key)] = filterMappingPayload{
			Mapping:        renderMapping(fm.Mapping),
			OptionMappings: renderMappingsByKey(fm.OptionMappings),
		}
	}

	return resp
}

func renderCandidatePool(candidates map[domain.CandidateKey]domain.Candidate) []candidateElementPayload {
	out := make([]candidateElementPayload, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, candidateElementPayload{
			Key:   string(candidate.Key),
			Label: candidate.Label,
			Code:  candidate.Code,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func statusPayloadFromDomain(versionID string, status domain.MappingStatus) mappingStatusPayload {
	return mappingStatusPayload{
		VersionID:             versionID,
		LocationsComplete:     status.LocationsComplete,
		FiltersComplete:       status.FiltersComplete,
		Complete:              status.Complete,
		HasMajorVersionUpdate: status.HasMajorVersionUpdate,
	}
}

func statusPayloadFromView(view services.MappingStatusView) mappingStatusPayload {
	return mappingStatusPayload{
		VersionID:             view.VersionID,
		LocationsComplete:     view.LocationsComplete,
		FiltersComplete:       view.FiltersComplete,
		Complete:              view.Complete,
		HasMajorVersionUpdate: view.HasMajorVersionUpdate,
		UpdatedAt:             formatTime(view.UpdatedAt),
	}
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "mapping service is not available", http.StatusServiceUnavailable))
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("request_too_large", "request body exceeds the allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
	}
}

func writeMappingError(ctx context.Context, w http.ResponseWriter, err error) {
	var batchErr *services.BatchValidationError
	switch {
	case errors.As(err, &batchErr):
		items := make([]map[string]any, 0, len(batchErr.Items))
		for _, item := range batchErr.Items {
			items = append(items, map[string]any{
				"index":   item.Index,
				"code":    string(item.Code),
				"message": item.Message,
			})
		}
		httpx.WriteError(ctx, w, httpx.NewError("mapping_batch_rejected", "one or more updates are invalid", http.StatusBadRequest).
			WithDetails(map[string]any{"errors": items}))
	case errors.Is(err, services.ErrMappingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid mapping input", http.StatusBadRequest))
	case errors.Is(err, services.ErrMappingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("mapping_not_found", "no mapping store exists for this version", http.StatusNotFound))
	case errors.Is(err, services.ErrMappingExists):
		httpx.WriteError(ctx, w, httpx.NewError("mapping_exists", "a mapping store already exists for this version", http.StatusConflict))
	case errors.Is(err, services.ErrMappingUnavailable), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "mapping storage is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_server_error", "internal server error", http.StatusInternalServerError))
	}
}
