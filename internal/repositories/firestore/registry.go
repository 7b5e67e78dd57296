package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/openstats/data-api/internal/platform/firestore"
	"github.com/openstats/data-api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the registry
// contract used for dependency injection.
type Registry struct {
	provider *pfirestore.Provider
	mappings *MappingRepository
	audit    *AuditLogRepository
	health   repositories.HealthRepository
}

// NewRegistry constructs the repository set on top of a shared provider. The
// health repository is injected because its probe set is assembled at startup
// from whatever dependencies the process actually talks to.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	mappings, err := NewMappingRepository(provider)
	if err != nil {
		return nil, err
	}
	audit, err := NewAuditLogRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		mappings: mappings,
		audit:    audit,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Mappings returns the mapping store repository.
func (r *Registry) Mappings() repositories.MappingRepository {
	if r == nil || r.mappings == nil {
		return nil
	}
	return r.mappings
}

// AuditLogs returns the audit trail repository.
func (r *Registry) AuditLogs() repositories.AuditLogRepository {
	if r == nil || r.audit == nil {
		return nil
	}
	return r.audit
}

// Health returns the dependency probe repository.
func (r *Registry) Health() repositories.HealthRepository {
	return r.health
}

var _ repositories.Registry = (*Registry)(nil)
