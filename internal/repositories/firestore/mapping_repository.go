package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/openstats/data-api/internal/domain"
	pfirestore "github.com/openstats/data-api/internal/platform/firestore"
	"github.com/openstats/data-api/internal/repositories"
)

const versionMappingsCollection = "versionMappings"

// MappingRepository persists one mapping store document per dataset version.
type MappingRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.VersionMapping]
}

// NewMappingRepository constructs a Firestore-backed mapping store repository.
func NewMappingRepository(provider *pfirestore.Provider) (*MappingRepository, error) {
	if provider == nil {
		return nil, errors.New("mapping repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.VersionMapping) (any, error) {
		return encodeVersionMappingDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.VersionMapping, error) {
		return decodeVersionMappingSnapshot(snap)
	}

	base := pfirestore.NewBaseRepository[domain.VersionMapping](provider, versionMappingsCollection, encoder, decoder)
	return &MappingRepository{provider: provider, base: base}, nil
}

// Insert creates the store document. A document already existing for the
// version surfaces as a conflict.
func (r *MappingRepository) Insert(ctx context.Context, mapping domain.VersionMapping) error {
	if r == nil || r.base == nil {
		return errors.New("mapping repository not initialised")
	}
	mapping.VersionID = strings.TrimSpace(mapping.VersionID)
	if mapping.VersionID == "" {
		return errors.New("mapping repository: version id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, mapping.VersionID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeVersionMappingDocument(mapping)); err != nil {
		return pfirestore.WrapError("version_mappings.insert", err)
	}
	return nil
}

// Get loads the store for a version.
func (r *MappingRepository) Get(ctx context.Context, versionID string) (domain.VersionMapping, error) {
	if r == nil || r.base == nil {
		return domain.VersionMapping{}, errors.New("mapping repository not initialised")
	}
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return domain.VersionMapping{}, errors.New("mapping repository: version id is required")
	}
	doc, err := r.base.Get(ctx, versionID)
	if err != nil {
		return domain.VersionMapping{}, err
	}
	return doc.Data, nil
}

// Mutate runs fn against the current store inside a Firestore transaction and
// writes the result back. An error from fn aborts the transaction with
// nothing persisted; the error is returned to the caller unchanged apart
// from transaction wrapping.
func (r *MappingRepository) Mutate(ctx context.Context, versionID string, fn func(*domain.VersionMapping) error) (domain.VersionMapping, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.VersionMapping{}, errors.New("mapping repository not initialised")
	}
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return domain.VersionMapping{}, errors.New("mapping repository: version id is required")
	}
	if fn == nil {
		return domain.VersionMapping{}, errors.New("mapping repository: mutate function is required")
	}

	docRef, err := r.base.DocumentRef(ctx, versionID)
	if err != nil {
		return domain.VersionMapping{}, err
	}

	var result domain.VersionMapping
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		mapping, err := decodeVersionMappingSnapshot(snap)
		if err != nil {
			return err
		}
		if err := fn(&mapping); err != nil {
			return err
		}
		mapping.VersionID = versionID
		if err := tx.Set(docRef, encodeVersionMappingDocument(mapping)); err != nil {
			return err
		}
		result = mapping
		return nil
	})
	if err != nil {
		return domain.VersionMapping{}, err
	}
	return result, nil
}

// Delete removes the store for a discarded draft version.
func (r *MappingRepository) Delete(ctx context.Context, versionID string) error {
	if r == nil || r.base == nil {
		return errors.New("mapping repository not initialised")
	}
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return errors.New("mapping repository: version id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, versionID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("version_mappings.delete", err)
	}
	return nil
}

func decodeVersionMappingSnapshot(snap *firestore.DocumentSnapshot) (domain.VersionMapping, error) {
	var doc versionMappingDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.VersionMapping{}, err
	}
	doc.VersionID = snap.Ref.ID
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = snap.CreateTime
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = snap.UpdateTime
	}
	return decodeVersionMappingDocument(doc), nil
}

func encodeVersionMappingDocument(mapping domain.VersionMapping) versionMappingDocument {
	levels := make(map[string]levelDocument, len(mapping.Locations.Levels))
	for level, lm := range mapping.Locations.Levels {
		levels[string(level)] = levelDocument{
			Candidates: encodeCandidatePool(lm.Candidates),
			Mappings:   encodeMappingSet(lm.Mappings),
		}
	}

	filterCandidates := make(map[string]filterCandidateDocument, len(mapping.Filters.Candidates))
	for key, candidate := range mapping.Filters.Candidates {
		filterCandidates[string(key)] = filterCandidateDocument{
			Label:   candidate.Label,
			Options: encodeCandidatePool(candidate.Options),
		}
	}

	filterMappings := make(map[string]filterMappingDocument, len(mapping.Filters.Mappings))
	for key, fm := range mapping.Filters.Mappings {
		filterMappings[string(key)] = filterMappingDocument{
			Filter:  encodeMappingDocument(fm.Mapping),
			Options: encodeMappingSet(fm.OptionMappings),
		}
	}

	var hierarchy []hierarchyTierDocument
	if mapping.Hierarchy != nil {
		hierarchy = make([]hierarchyTierDocument, 0, len(mapping.Hierarchy.Tiers))
		for _, tier := range mapping.Hierarchy.Tiers {
			adjacency := make(map[string][]string, len(tier.Hierarchy))
			for parent, children := range tier.Hierarchy {
				keys := make([]string, len(children))
				for i, child := range children {
					keys[i] = string(child)
				}
				adjacency[string(parent)] = keys
			}
			hierarchy = append(hierarchy, hierarchyTierDocument{
				Level:          tier.Level,
				FilterKey:      string(tier.FilterKey),
				ChildFilterKey: string(tier.ChildFilterKey),
				Hierarchy:      adjacency,
			})
		}
	}

	return versionMappingDocument{
		PreviousVersionID: strings.TrimSpace(mapping.PreviousVersionID),
		Levels:            levels,
		FilterCandidates:  filterCandidates,
		FilterMappings:    filterMappings,
		Hierarchy:         hierarchy,
		NewElementIDs:     cloneStringMap(mapping.NewElementIDs),
		CreatedAt:         mapping.CreatedAt.UTC(),
		UpdatedAt:         mapping.UpdatedAt.UTC(),
	}
}

func decodeVersionMappingDocument(doc versionMappingDocument) domain.VersionMapping {
	levels := make(map[domain.GeographicLevel]domain.LevelMapping, len(doc.Levels))
	for level, lm := range doc.Levels {
		levels[domain.GeographicLevel(level)] = domain.LevelMapping{
			Candidates: decodeCandidatePool(lm.Candidates),
			Mappings:   decodeMappingSet(lm.Mappings),
		}
	}

	filterCandidates := make(map[domain.CandidateKey]domain.FilterCandidate, len(doc.FilterCandidates))
	for key, candidate := range doc.FilterCandidates {
		filterCandidates[domain.CandidateKey(key)] = domain.FilterCandidate{
			Key:     domain.CandidateKey(key),
			Label:   candidate.Label,
			Options: decodeCandidatePool(candidate.Options),
		}
	}

	filterMappings := make(map[domain.FilterKey]domain.FilterMapping, len(doc.FilterMappings))
	for key, fm := range doc.FilterMappings {
		filterMappings[domain.FilterKey(key)] = domain.FilterMapping{
			Mapping:        decodeMappingDocument(fm.Filter),
			OptionMappings: decodeMappingSet(fm.Options),
		}
	}

	var hierarchy *domain.FilterHierarchy
	if len(doc.Hierarchy) > 0 {
		tiers := make([]domain.HierarchyTier, 0, len(doc.Hierarchy))
		for _, tier := range doc.Hierarchy {
			adjacency := make(map[domain.SourceKey][]domain.SourceKey, len(tier.Hierarchy))
			for parent, children := range tier.Hierarchy {
				keys := make([]domain.SourceKey, len(children))
				for i, child := range children {
					keys[i] = domain.SourceKey(child)
				}
				adjacency[domain.SourceKey(parent)] = keys
			}
			tiers = append(tiers, domain.HierarchyTier{
				Level:          tier.Level,
				FilterKey:      domain.FilterKey(tier.FilterKey),
				ChildFilterKey: domain.FilterKey(tier.ChildFilterKey),
				Hierarchy:      adjacency,
			})
		}
		hierarchy = &domain.FilterHierarchy{Tiers: tiers}
	}

	return domain.VersionMapping{
		VersionID:         doc.VersionID,
		PreviousVersionID: doc.PreviousVersionID,
		Locations:         domain.LocationsMapping{Levels: levels},
		Filters: domain.FiltersMapping{
			Candidates: filterCandidates,
			Mappings:   filterMappings,
		},
		Hierarchy:     hierarchy,
		NewElementIDs: cloneStringMap(doc.NewElementIDs),
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
}

func encodeMappingDocument(mapping domain.Mapping) mappingDocument {
	return mappingDocument{
		Type:         string(mapping.Type),
		SourceLabel:  mapping.Source.Label,
		SourceCode:   mapping.Source.Code,
		CandidateKey: string(mapping.CandidateKey),
		PublicID:     mapping.PublicID,
	}
}

func decodeMappingDocument(doc mappingDocument) domain.Mapping {
	return domain.Mapping{
		Type: domain.MappingType(doc.Type),
		Source: domain.Source{
			Label: doc.SourceLabel,
			Code:  doc.SourceCode,
		},
		CandidateKey: domain.CandidateKey(doc.CandidateKey),
		PublicID:     doc.PublicID,
	}
}

func encodeMappingSet(mappings map[domain.SourceKey]domain.Mapping) map[string]mappingDocument {
	out := make(map[string]mappingDocument, len(mappings))
	for key, mapping := range mappings {
		out[string(key)] = encodeMappingDocument(mapping)
	}
	return out
}

func decodeMappingSet(docs map[string]mappingDocument) map[domain.SourceKey]domain.Mapping {
	out := make(map[domain.SourceKey]domain.Mapping, len(docs))
	for key, doc := range docs {
		out[domain.SourceKey(key)] = decodeMappingDocument(doc)
	}
	return out
}

func encodeCandidatePool(candidates map[domain.CandidateKey]domain.Candidate) map[string]candidateDocument {
	out := make(map[string]candidateDocument, len(candidates))
	for key, candidate := range candidates {
		out[string(key)] = candidateDocument{
			Label: candidate.Label,
			Code:  candidate.Code,
		}
	}
	return out
}

func decodeCandidatePool(docs map[string]candidateDocument) map[domain.CandidateKey]domain.Candidate {
	out := make(map[domain.CandidateKey]domain.Candidate, len(docs))
	for key, doc := range docs {
		out[domain.CandidateKey(key)] = domain.Candidate{
			Key:   domain.CandidateKey(key),
			Label: doc.Label,
			Code:  doc.Code,
		}
	}
	return out
}

type versionMappingDocument struct {
	VersionID         string                             `firestore:"-"`
	PreviousVersionID string                             `firestore:"previousVersionId,omitempty"`
	Levels            map[string]levelDocument           `firestore:"levels"`
	FilterCandidates  map[string]filterCandidateDocument `firestore:"filterCandidates"`
	FilterMappings    map[string]filterMappingDocument   `firestore:"filterMappings"`
	Hierarchy         []hierarchyTierDocument            `firestore:"hierarchy,omitempty"`
	NewElementIDs     map[string]string                  `firestore:"newElementIds,omitempty"`
	CreatedAt         time.Time                          `firestore:"createdAt"`
	UpdatedAt         time.Time                          `firestore:"updatedAt"`
}

type levelDocument struct {
	Candidates map[string]candidateDocument `firestore:"candidates"`
	Mappings   map[string]mappingDocument   `firestore:"mappings"`
}

type candidateDocument struct {
	Label string `firestore:"label"`
	Code  string `firestore:"code,omitempty"`
}

type mappingDocument struct {
	Type         string `firestore:"type"`
	SourceLabel  string `firestore:"sourceLabel"`
	SourceCode   string `firestore:"sourceCode,omitempty"`
	CandidateKey string `firestore:"candidateKey,omitempty"`
	PublicID     string `firestore:"publicId,omitempty"`
}

type filterCandidateDocument struct {
	Label   string                       `firestore:"label"`
	Options map[string]candidateDocument `firestore:"options"`
}

type filterMappingDocument struct {
	Filter  mappingDocument            `firestore:"filter"`
	Options map[string]mappingDocument `firestore:"options"`
}

type hierarchyTierDocument struct {
	Level          int                 `firestore:"level"`
	FilterKey      string              `firestore:"filterKey"`
	ChildFilterKey string              `firestore:"childFilterKey,omitempty"`
	Hierarchy      map[string][]string `firestore:"hierarchy"`
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(values))
	for key, value := range values {
		cloned[key] = value
	}
	return cloned
}

var _ repositories.MappingRepository = (*MappingRepository)(nil)
