package domain

import "time"

// AuditLogEntry is one append-only record of a manual intervention against a
// version mapping. Entries are written best-effort and never block the
// mutation they describe.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Severity  string
	RequestID string
	UserAgent string
	IPHash    string
	Metadata  map[string]any
	Diff      map[string]any
	CreatedAt time.Time
}
