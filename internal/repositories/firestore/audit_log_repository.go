package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"

	domain "github.com/openstats/data-api/internal/domain"
	pfirestore "github.com/openstats/data-api/internal/platform/firestore"
	"github.com/openstats/data-api/internal/repositories"
)

const auditLogsCollection = "auditLogs"

// AuditLogRepository appends immutable audit trail documents.
type AuditLogRepository struct {
	base  *pfirestore.BaseRepository[domain.AuditLogEntry]
	newID func() string
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository: firestore provider is required")
	}

	encoder := func(ctx context.Context, value domain.AuditLogEntry) (any, error) {
		return encodeAuditLogDocument(value), nil
	}
	decoder := func(ctx context.Context, snap *firestore.DocumentSnapshot) (domain.AuditLogEntry, error) {
		var doc auditLogDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.AuditLogEntry{}, err
		}
		doc.ID = snap.Ref.ID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = snap.CreateTime
		}
		return decodeAuditLogDocument(doc), nil
	}

	base := pfirestore.NewBaseRepository[domain.AuditLogEntry](provider, auditLogsCollection, encoder, decoder)
	return &AuditLogRepository{
		base:  base,
		newID: func() string { return ulid.Make().String() },
	}, nil
}

// Append writes a new entry. Entries are never updated once written, so the
// document is created rather than set.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.base == nil {
		return errors.New("audit log repository not initialised")
	}
	entry.ID = strings.TrimSpace(entry.ID)
	if entry.ID == "" {
		entry.ID = r.newID()
	}

	docRef, err := r.base.DocumentRef(ctx, entry.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeAuditLogDocument(entry)); err != nil {
		return pfirestore.WrapError("audit_logs.append", err)
	}
	return nil
}

func encodeAuditLogDocument(entry domain.AuditLogEntry) auditLogDocument {
	return auditLogDocument{
		Actor:     entry.Actor,
		ActorType: entry.ActorType,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		UserAgent: entry.UserAgent,
		IPHash:    entry.IPHash,
		Metadata:  cloneMetadata(entry.Metadata),
		Diff:      cloneMetadata(entry.Diff),
		CreatedAt: entry.CreatedAt.UTC(),
	}
}

func decodeAuditLogDocument(doc auditLogDocument) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:        doc.ID,
		Actor:     doc.Actor,
		ActorType: doc.ActorType,
		Action:    doc.Action,
		TargetRef: doc.TargetRef,
		Severity:  doc.Severity,
		RequestID: doc.RequestID,
		UserAgent: doc.UserAgent,
		IPHash:    doc.IPHash,
		Metadata:  cloneMetadata(doc.Metadata),
		Diff:      cloneMetadata(doc.Diff),
		CreatedAt: doc.CreatedAt.UTC(),
	}
}

type auditLogDocument struct {
	ID        string         `firestore:"-"`
	Actor     string         `firestore:"actor"`
	ActorType string         `firestore:"actorType"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef"`
	Severity  string         `firestore:"severity"`
	RequestID string         `firestore:"requestId,omitempty"`
	UserAgent string         `firestore:"userAgent,omitempty"`
	IPHash    string         `firestore:"ipHash,omitempty"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	Diff      map[string]any `firestore:"diff,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

func cloneMetadata(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(values))
	for key, value := range values {
		cloned[key] = value
	}
	return cloned
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
