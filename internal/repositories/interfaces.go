package repositories

import (
	"context"

	domain "github.com/openstats/data-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Mappings() MappingRepository
	AuditLogs() AuditLogRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// MappingRepository persists the mapping store for draft dataset versions.
// One document per version; versions never share state.
type MappingRepository interface {
	// Insert creates the store for a version. Returns a conflict error when a
	// store for the version already exists.
	Insert(ctx context.Context, mapping domain.VersionMapping) error
	// Get loads the store for a version.
	Get(ctx context.Context, versionID string) (domain.VersionMapping, error)
	// Mutate loads the store, applies fn to it, and writes the result back as
	// a single atomic read-modify-write. fn returning an error aborts the
	// write with nothing persisted. Concurrent mutations of the same version
	// serialise; different versions proceed independently.
	Mutate(ctx context.Context, versionID string, fn func(*domain.VersionMapping) error) (domain.VersionMapping, error)
	// Delete removes the store for a discarded draft version.
	Delete(ctx context.Context, versionID string) error
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
