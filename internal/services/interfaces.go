package services

import (
	"context"
	"time"

	domain "github.com/openstats/data-api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	GeographicLevel    = domain.GeographicLevel
	SourceKey          = domain.SourceKey
	CandidateKey       = domain.CandidateKey
	FilterKey          = domain.FilterKey
	MappingType        = domain.MappingType
	Mapping            = domain.Mapping
	Candidate          = domain.Candidate
	VersionMapping     = domain.VersionMapping
	MappingStatus      = domain.MappingStatus
	HierarchyTier      = domain.HierarchyTier
	AuditLogEntry      = domain.AuditLogEntry
	SystemHealthReport = domain.SystemHealthReport
)

// SourceInput is one previous-version dimension element handed over by the
// schema extractor, together with the published identifier it must keep.
type SourceInput struct {
	Key      SourceKey
	Label    string
	Code     string
	PublicID string
}

// CandidateInput is one dimension element discovered in the new source file.
type CandidateInput struct {
	Key   CandidateKey
	Label string
	Code  string
}

// LevelInput pairs the carried-over sources with the extracted candidates for
// one geographic level.
type LevelInput struct {
	Sources    []SourceInput
	Candidates []CandidateInput
}

// FilterSourceInput is a previous-version filter with its option sources.
type FilterSourceInput struct {
	Key      FilterKey
	Label    string
	PublicID string
	Options  []SourceInput
}

// FilterCandidateInput is a filter column extracted from the new file with
// its scoped option candidates.
type FilterCandidateInput struct {
	Key     CandidateKey
	Label   string
	Options []CandidateInput
}

// CreateMappingCommand carries everything the matcher needs to build the
// mapping store for a new draft version.
type CreateMappingCommand struct {
	VersionID         string
	PreviousVersionID string
	Locations         map[GeographicLevel]LevelInput
	FilterSources     []FilterSourceInput
	FilterCandidates  []FilterCandidateInput
	Hierarchy         []HierarchyTier
	Actor             string
}

// LocationMappingUpdate is one reviewer decision in a location batch.
type LocationMappingUpdate struct {
	Level        GeographicLevel
	SourceKey    SourceKey
	CandidateKey CandidateKey
	Type         MappingType
}

// FilterMappingUpdate is one reviewer decision about a filter itself.
type FilterMappingUpdate struct {
	FilterKey    FilterKey
	CandidateKey CandidateKey
	Type         MappingType
}

// FilterOptionMappingUpdate is one reviewer decision about an option under a
// resolved parent filter.
type FilterOptionMappingUpdate struct {
	FilterKey    FilterKey
	SourceKey    SourceKey
	CandidateKey CandidateKey
	Type         MappingType
}

// BatchLocationUpdatesCommand applies a whole location batch atomically.
type BatchLocationUpdatesCommand struct {
	VersionID string
	Updates   []LocationMappingUpdate
	Actor     string
}

// BatchFilterUpdatesCommand applies a whole filter batch atomically.
type BatchFilterUpdatesCommand struct {
	VersionID string
	Updates   []FilterMappingUpdate
	Actor     string
}

// BatchFilterOptionUpdatesCommand applies a whole option batch atomically.
type BatchFilterOptionUpdatesCommand struct {
	VersionID string
	Updates   []FilterOptionMappingUpdate
	Actor     string
}

// AppliedLocationMapping echoes one committed location update.
type AppliedLocationMapping struct {
	Level     GeographicLevel
	SourceKey SourceKey
	Mapping   Mapping
}

// AppliedFilterMapping echoes one committed filter update together with the
// option mappings the remap reset.
type AppliedFilterMapping struct {
	FilterKey      FilterKey
	Mapping        Mapping
	OptionMappings map[SourceKey]Mapping
}

// AppliedFilterOptionMapping echoes one committed option update.
type AppliedFilterOptionMapping struct {
	FilterKey FilterKey
	SourceKey SourceKey
	Mapping   Mapping
}

// BatchLocationUpdatesResult is returned after a fully committed batch.
type BatchLocationUpdatesResult struct {
	Updates []AppliedLocationMapping
	Status  MappingStatus
}

// BatchFilterUpdatesResult is returned after a fully committed batch.
type BatchFilterUpdatesResult struct {
	Updates []AppliedFilterMapping
	Status  MappingStatus
}

// BatchFilterOptionUpdatesResult is returned after a fully committed batch.
type BatchFilterOptionUpdatesResult struct {
	Updates []AppliedFilterOptionMapping
	Status  MappingStatus
}

// MappingStatusView is the read model exposed to the publish workflow and
// the admin surface. It is derived on demand, never stored.
type MappingStatusView struct {
	VersionID             string
	LocationsComplete     bool
	FiltersComplete       bool
	Complete              bool
	HasMajorVersionUpdate bool
	UpdatedAt             time.Time
}

// NewElement describes a candidate no previous element claimed, with the
// public identifier minted for it at finalise time.
type NewElement struct {
	Scope        string
	CandidateKey CandidateKey
	Label        string
	Code         string
	PublicID     string
}

// FinalizeCommand asks for the publish decision for a draft version.
// CurrentVersion is the previous published version as "major.minor".
type FinalizeCommand struct {
	VersionID      string
	CurrentVersion string
	Actor          string
}

// FinalizeResult carries the publish decision and the identifiers the
// publish workflow needs to register newly introduced elements.
type FinalizeResult struct {
	Status      MappingStatusView
	NextVersion string
	NewElements []NewElement
}

// MappingService owns the mapping store lifecycle for draft dataset
// versions: creation through the candidate matcher, reviewer batches,
// status reads, and the finalise decision for the publish workflow.
type MappingService interface {
	CreateForVersion(ctx context.Context, cmd CreateMappingCommand) (VersionMapping, error)
	ApplyLocationUpdates(ctx context.Context, cmd BatchLocationUpdatesCommand) (BatchLocationUpdatesResult, error)
	ApplyFilterUpdates(ctx context.Context, cmd BatchFilterUpdatesCommand) (BatchFilterUpdatesResult, error)
	ApplyFilterOptionUpdates(ctx context.Context, cmd BatchFilterOptionUpdatesCommand) (BatchFilterOptionUpdatesResult, error)
	GetStatus(ctx context.Context, versionID string) (MappingStatusView, error)
	Finalize(ctx context.Context, cmd FinalizeCommand) (FinalizeResult, error)
	DeleteForVersion(ctx context.Context, versionID string) error
}

// MappingStatusEvent notifies the release workflow that a version's derived
// status may have changed.
type MappingStatusEvent struct {
	VersionID string
	Status    MappingStatusView
	Trigger   string
	EmittedAt time.Time
}

// VersionFinalizedEvent notifies the publish workflow of the version
// decision and the newly minted element identifiers.
type VersionFinalizedEvent struct {
	VersionID   string
	NextVersion string
	Status      MappingStatusView
	NewElements []NewElement
	EmittedAt   time.Time
}

// VersionEventPublisher pushes derived status changes to the external
// release workflow. Publish failures are logged by callers, never surfaced.
type VersionEventPublisher interface {
	PublishMappingStatus(ctx context.Context, event MappingStatusEvent) error
	PublishVersionFinalized(ctx context.Context, event VersionFinalizedEvent) error
}

// AuditLogDiff captures a before/after pair for a single field.
type AuditLogDiff struct {
	Before any
	After  any
}

// AuditLogRecord is the write-side payload accepted by the audit writer.
type AuditLogRecord struct {
	Actor                 string
	ActorType             string
	Action                string
	TargetRef             string
	Severity              string
	RequestID             string
	UserAgent             string
	IPAddress             string
	OccurredAt            time.Time
	Metadata              map[string]any
	SensitiveMetadataKeys []string
	Diff                  map[string]AuditLogDiff
	SensitiveDiffKeys     []string
}

// AuditLogService records manual interventions for the admin surface.
// Recording never fails the primary mutation.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
}

// SystemService aggregates dependency health for the readiness probe.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}
