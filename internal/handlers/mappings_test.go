package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/openstats/data-api/internal/domain"
	"github.com/openstats/data-api/internal/services"
)

type fakeMappingService struct {
	createFn    func(ctx context.Context, cmd services.CreateMappingCommand) (services.VersionMapping, error)
	locationsFn func(ctx context.Context, cmd services.BatchLocationUpdatesCommand) (services.BatchLocationUpdatesResult, error)
	filtersFn   func(ctx context.Context, cmd services.BatchFilterUpdatesCommand) (services.BatchFilterUpdatesResult, error)
	optionsFn   func(ctx context.Context, cmd services.BatchFilterOptionUpdatesCommand) (services.BatchFilterOptionUpdatesResult, error)
	statusFn    func(ctx context.Context, versionID string) (services.MappingStatusView, error)
	finalizeFn  func(ctx context.Context, cmd services.FinalizeCommand) (services.FinalizeResult, error)
	deleteFn    func(ctx context.Context, versionID string) error
}

func (f *fakeMappingService) CreateForVersion(ctx context.Context, cmd services.CreateMappingCommand) (services.VersionMapping, error) {
	if f.createFn == nil {
		return services.VersionMapping{}, services.ErrMappingUnavailable
	}
	return f.createFn(ctx, cmd)
}

func (f *fakeMappingService) ApplyLocationUpdates(ctx context.Context, cmd services.BatchLocationUpdatesCommand) (services.BatchLocationUpdatesResult, error) {
	if f.locationsFn == nil {
		return services.BatchLocationUpdatesResult{}, services.ErrMappingUnavailable
	}
	return f.locationsFn(ctx, cmd)
}

func (f *fakeMappingService) ApplyFilterUpdates(ctx context.Context, cmd services.BatchFilterUpdatesCommand) (services.BatchFilterUpdatesResult, error) {
	if f.filtersFn == nil {
		return services.BatchFilterUpdatesResult{}, services.ErrMappingUnavailable
	}
	return f.filtersFn(ctx, cmd)
}

func (f *fakeMappingService) ApplyFilterOptionUpdates(ctx context.Context, cmd services.BatchFilterOptionUpdatesCommand) (services.BatchFilterOptionUpdatesResult, error) {
	if f.optionsFn == nil {
		return services.BatchFilterOptionUpdatesResult{}, services.ErrMappingUnavailable
	}
	return f.optionsFn(ctx, cmd)
}

func (f *fakeMappingService) GetStatus(ctx context.Context, versionID string) (services.MappingStatusView, error) {
	if f.statusFn == nil {
		return services.MappingStatusView{}, services.ErrMappingUnavailable
	}
	return f.statusFn(ctx, versionID)
}

func (f *fakeMappingService) Finalize(ctx context.Context, cmd services.FinalizeCommand) (services.FinalizeResult, error) {
	if f.finalizeFn == nil {
		return services.FinalizeResult{}, services.ErrMappingUnavailable
	}
	return f.finalizeFn(ctx, cmd)
}

func (f *fakeMappingService) DeleteForVersion(ctx context.Context, versionID string) error {
	if f.deleteFn == nil {
		return services.ErrMappingUnavailable
	}
	return f.deleteFn(ctx, versionID)
}

func newMappingTestRouter(svc services.MappingService, opts ...MappingOption) chi.Router {
	opts = append([]MappingOption{WithMappingService(svc)}, opts...)
	h := NewMappingHandlers(opts...)
	r := chi.NewRouter()
	h.RegisterAdminRoutes(r)
	h.RegisterInternalRoutes(r)
	return r
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not valid JSON: %v - %s", err, rr.Body.String())
	}
	return payload
}

func TestCreateMappingReturnsStore(t *testing.T) {
	var captured services.CreateMappingCommand
	svc := &fakeMappingService{
		createFn: func(_ context.Context, cmd services.CreateMappingCommand) (services.VersionMapping, error) {
			captured = cmd
			return domain.VersionMapping{
				VersionID:         cmd.VersionID,
				PreviousVersionID: cmd.PreviousVersionID,
				Locations: domain.LocationsMapping{Levels: map[domain.GeographicLevel]domain.LevelMapping{
					"ltla": {
						Candidates: map[domain.CandidateKey]domain.Candidate{
							"E09000007": {Key: "E09000007", Label: "Camden", Code: "E09000007"},
						},
						Mappings: map[domain.SourceKey]domain.Mapping{
							"E09000007": domain.AutoMapped(domain.Source{Label: "Camden", Code: "E09000007"}, "el_camden", "E09000007"),
						},
					},
				}},
				CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
				UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newMappingTestRouter(svc)

	body := `{
		"previousVersionId": "ver_1",
		"locations": {
			"ltla": {
				"sources": [{"key": "E09000007", "label": "Camden", "code": "E09000007", "publicId": "el_camden"}],
				"candidates": [{"key": "E09000007", "label": "Camden", "code": "E09000007"}]
			}
		}
	}`
	req := httptest.NewRequest(http.MethodPut, "/versions/ver_2/mapping", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.VersionID != "ver_2" {
		t.Fatalf("expected version id ver_2, got %q", captured.VersionID)
	}
	if captured.PreviousVersionID != "ver_1" {
		t.Fatalf("expected previous version ver_1, got %q", captured.PreviousVersionID)
	}
	level, ok := captured.Locations["ltla"]
	if !ok {
		t.Fatalf("expected ltla level in command, got %#v", captured.Locations)
	}
	if len(level.Sources) != 1 || level.Sources[0].PublicID != "el_camden" {
		t.Fatalf("unexpected decoded sources: %#v", level.Sources)
	}

	payload := decodeJSONBody(t, rr)
	if payload["versionId"] != "ver_2" {
		t.Fatalf("expected versionId ver_2, got %v", payload["versionId"])
	}
	status, ok := payload["status"].(map[string]any)
	if !ok {
		t.Fatalf("expected status object, got %v", payload["status"])
	}
	if status["complete"] != true {
		t.Fatalf("expected complete=true, got %v", status["complete"])
	}
}

func TestCreateMappingConflict(t *testing.T) {
	svc := &fakeMappingService{
		createFn: func(context.Context, services.CreateMappingCommand) (services.VersionMapping, error) {
			return services.VersionMapping{}, services.ErrMappingExists
		},
	}
	router := newMappingTestRouter(svc)

	req := httptest.NewRequest(http.MethodPut, "/versions/ver_2/mapping", strings.NewReader(`{"previousVersionId":"ver_1"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeJSONBody(t, rr)
	if payload["error"] != "mapping_exists" {
		t.Fatalf("expected mapping_exists code, got %v", payload["error"])
	}
}

func TestApplyLocationUpdatesSuccess(t *testing.T) {
	var captured services.BatchLocationUpdatesCommand
	svc := &fakeMappingService{
		locationsFn: func(_ context.Context, cmd services.BatchLocationUpdatesCommand) (services.BatchLocationUpdatesResult, error) {
			captured = cmd
			return services.BatchLocationUpdatesResult{
				Updates: []services.AppliedLocationMapping{{
					Level:     "ltla",
					SourceKey: "E08000001",
					Mapping: domain.Mapping{
						Type:         domain.MappingTypeManualMapped,
						Source:       domain.Source{Label: "Bolton", Code: "E08000001"},
						CandidateKey: "E08000001",
						PublicID:     "el_bolton",
					},
				}},
				Status: domain.MappingStatus{LocationsComplete: true, FiltersComplete: true, Complete: true},
			}, nil
		},
	}
	router := newMappingTestRouter(svc)

	body := `{"updates":[{"level":"ltla","sourceKey":"E08000001","candidateKey":"E08000001","type":"ManualMapped"}]}`
	req := httptest.NewRequest(http.MethodPost, "/versions/ver_2/mapping/locations", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.Updates) != 1 {
		t.Fatalf("expected 1 decoded update, got %d", len(captured.Updates))
	}
	update := captured.Updates[0]
	if update.Level != "ltla" || update.SourceKey != "E08000001" || update.Type != domain.MappingTypeManualMapped {
		t.Fatalf("unexpected decoded update: %#v", update)
	}

	payload := decodeJSONBody(t, rr)
	status, ok := payload["status"].(map[string]any)
	if !ok {
		t.Fatalf("expected status object, got %v", payload["status"])
	}
	if status["locationsComplete"] != true || status["hasMajorVersionUpdate"] != false {
		t.Fatalf("unexpected status payload: %v", status)
	}
	updates, ok := payload["updates"].([]any)
	if !ok || len(updates) != 1 {
		t.Fatalf("expected 1 applied update, got %v", payload["updates"])
	}
	applied, _ := updates[0].(map[string]any)
	mapping, _ := applied["mapping"].(map[string]any)
	if mapping["type"] != "ManualMapped" || mapping["publicId"] != "el_bolton" {
		t.Fatalf("unexpected applied mapping: %v", mapping)
	}
}

func TestApplyLocationUpdatesBatchRejected(t *testing.T) {
	svc := &fakeMappingService{
		locationsFn: func(context.Context, services.BatchLocationUpdatesCommand) (services.BatchLocationUpdatesResult, error) {
			return services.BatchLocationUpdatesResult{}, &services.BatchValidationError{Items: []services.MappingUpdateError{
				{Index: 0, Code: services.UpdateErrorCandidateKeyRequired, Message: "candidate key is required for mapped types"},
				{Index: 2, Code: services.UpdateErrorMappingNotFound, Message: "no mapping for source"},
			}}
		},
	}
	router := newMappingTestRouter(svc)

	body := `{"updates":[{"level":"ltla","sourceKey":"a","type":"ManualMapped"},{"level":"ltla","sourceKey":"b","type":"ManualNone"},{"level":"ltla","sourceKey":"c","type":"ManualNone"}]}`
	req := httptest.NewRequest(http.MethodPost, "/versions/ver_2/mapping/locations", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeJSONBody(t, rr)
	if payload["error"] != "mapping_batch_rejected" {
		t.Fatalf("expected mapping_batch_rejected code, got %v", payload["error"])
	}
	items, ok := payload["errors"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 rejection items, got %v", payload["errors"])
	}
	first, _ := items[0].(map[string]any)
	if first["code"] != "CandidateKeyMustBeSpecifiedWithMappedMappingType" {
		t.Fatalf("unexpected first rejection code: %v", first["code"])
	}
	if first["index"] != float64(0) {
		t.Fatalf("unexpected first rejection index: %v", first["index"])
	}
}

func TestApplyLocationUpdatesBatchTooLarge(t *testing.T) {
	svc := &fakeMappingService{
		locationsFn: func(context.Context, services.BatchLocationUpdatesCommand) (services.BatchLocationUpdatesResult, error) {
			t.Fatal("service must not be called for oversized batches")
			return services.BatchLocationUpdatesResult{}, nil
		},
	}
	router := newMappingTestRouter(svc, WithMappingLimits(2, 0))

	body := `{"updates":[{"level":"l","sourceKey":"a","type":"ManualNone"},{"level":"l","sourceKey":"b","type":"ManualNone"},{"level":"l","sourceKey":"c","type":"ManualNone"}]}`
	req := httptest.NewRequest(http.MethodPost, "/versions/ver_2/mapping/locations", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeJSONBody(t, rr)
	if payload["error"] != "batch_too_large" {
		t.Fatalf("expected batch_too_large code, got %v", payload["error"])
	}
}

func TestApplyFilterUpdatesEchoesResetOptions(t *testing.T) {
	svc := &fakeMappingService{
		filtersFn: func(_ context.Context, cmd services.BatchFilterUpdatesCommand) (services.BatchFilterUpdatesResult, error) {
			if len(cmd.Updates) != 1 || cmd.Updates[0].FilterKey != "sex" || cmd.Updates[0].Type != domain.MappingTypeManualMapped {
				t.Fatalf("unexpected decoded command: %#v", cmd)
			}
			return services.BatchFilterUpdatesResult{
				Updates: []services.AppliedFilterMapping{{
					FilterKey: "sex",
					Mapping: domain.Mapping{
						Type:         domain.MappingTypeManualMapped,
						Source:       domain.Source{Label: "Sex"},
						CandidateKey: "sex",
						PublicID:     "el_sex",
					},
					OptionMappings: map[domain.SourceKey]domain.Mapping{
						"female": domain.AutoNone(domain.Source{Label: "Female"}, "el_female"),
					},
				}},
				Status: domain.MappingStatus{LocationsComplete: true, HasMajorVersionUpdate: true},
			}, nil
		},
	}
	router := newMappingTestRouter(svc)

	body := `{"updates":[{"filterKey":"sex","candidateKey":"sex","type":"ManualMapped"}]}`
	req := httptest.NewRequest(http.MethodPost, "/versions/ver_2/mapping/filters", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeJSONBody(t, rr)
	updates, _ := payload["updates"].([]any)
	if len(updates) != 1 {
		t.Fatalf("expected 1 applied update, got %v", payload["updates"])
	}
	applied, _ := updates[0].(map[string]any)
	options, ok := applied["optionMappings"].(map[string]any)
	if !ok {
		t.Fatalf("expected option mappings, got %v", applied)
	}
	female, _ := options["female"].(map[string]any)
	if female["type"] != "AutoNone" {
		t.Fatalf("expected reset option to be AutoNone, got %v", female)
	}
}

func TestApplyFilterOptionUpdatesNotFound(t *testing.T) {
	svc := &fakeMappingService{
		optionsFn: func(_ context.Context, cmd services.BatchFilterOptionUpdatesCommand) (services.BatchFilterOptionUpdatesResult, error) {
			if len(cmd.Updates) != 1 || cmd.Updates[0].Type != domain.MappingTypeManualMapped {
				t.Fatalf("unexpected decoded command: %#v", cmd)
			}
			return services.BatchFilterOptionUpdatesResult{}, services.ErrMappingNotFound
		},
	}
	router := newMappingTestRouter(svc)

	body := `{"updates":[{"filterKey":"sex","sourceKey":"female","candidateKey":"cf","type":"ManualMapped"}]}`
	req := httptest.NewRequest(http.MethodPost, "/versions/missing/mapping/filter-options", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetStatusRendersView(t *testing.T) {
	svc := &fakeMappingService{
		statusFn: func(_ context.Context, versionID string) (services.MappingStatusView, error) {
			return services.MappingStatusView{
				VersionID:             versionID,
				LocationsComplete:     true,
				FiltersComplete:       false,
				Complete:              false,
				HasMajorVersionUpdate: true,
				UpdatedAt:             time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newMappingTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/versions/ver_2/mapping/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeJSONBody(t, rr)
	if payload["versionId"] != "ver_2" {
		t.Fatalf("expected versionId ver_2, got %v", payload["versionId"])
	}
	if payload["filtersComplete"] != false || payload["hasMajorVersionUpdate"] != true {
		t.Fatalf("unexpected status payload: %v", payload)
	}
	if payload["updatedAt"] != "2026-03-02T10:30:00Z" {
		t.Fatalf("unexpected updatedAt: %v", payload["updatedAt"])
	}
}

func TestFinalizeVersionReturnsDecision(t *testing.T) {
	svc := &fakeMappingService{
		finalizeFn: func(_ context.Context, cmd services.FinalizeCommand) (services.FinalizeResult, error) {
			if cmd.VersionID != "ver_2" || cmd.CurrentVersion != "2.3" {
				t.Fatalf("unexpected finalize command: %#v", cmd)
			}
			return services.FinalizeResult{
				Status: services.MappingStatusView{
					VersionID:             cmd.VersionID,
					LocationsComplete:     true,
					FiltersComplete:       false,
					HasMajorVersionUpdate: true,
				},
				NextVersion: "3.0",
				NewElements: []services.NewElement{{
					Scope:        "location:ltla",
					CandidateKey: "E06000066",
					Label:        "Somerset",
					Code:         "E06000066",
					PublicID:     "el_01hv3somerset",
				}},
			}, nil
		},
	}
	router := newMappingTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/versions/ver_2/mapping:finalize", strings.NewReader(`{"currentVersion":"2.3"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeJSONBody(t, rr)
	if payload["nextVersion"] != "3.0" {
		t.Fatalf("expected nextVersion 3.0, got %v", payload["nextVersion"])
	}
	elements, _ := payload["newElements"].([]any)
	if len(elements) != 1 {
		t.Fatalf("expected 1 new element, got %v", payload["newElements"])
	}
	element, _ := elements[0].(map[string]any)
	if element["publicId"] != "el_01hv3somerset" || element["scope"] != "location:ltla" {
		t.Fatalf("unexpected new element: %v", element)
	}
}

func TestDeleteMapping(t *testing.T) {
	svc := &fakeMappingService{
		deleteFn: func(_ context.Context, versionID string) error {
			if versionID != "ver_2" {
				t.Fatalf("unexpected version id %q", versionID)
			}
			return nil
		},
	}
	router := newMappingTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/versions/ver_2/mapping", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDeleteMappingNotFound(t *testing.T) {
	svc := &fakeMappingService{
		deleteFn: func(context.Context, string) error {
			return services.ErrMappingNotFound
		},
	}
	router := newMappingTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/versions/missing/mapping", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMappingHandlersWithoutService(t *testing.T) {
	router := newMappingTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/versions/ver_2/mapping/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestApplyLocationUpdatesEmptyBatch(t *testing.T) {
	router := newMappingTestRouter(&fakeMappingService{})

	req := httptest.NewRequest(http.MethodPost, "/versions/ver_2/mapping/locations", strings.NewReader(`{"updates":[]}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeJSONBody(t, rr)
	if payload["error"] != "invalid_request" {
		t.Fatalf("expected invalid_request code, got %v", payload["error"])
	}
}
