package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/openstats/data-api/internal/domain"
)

type stubAuditRepo struct {
	entries   []domain.AuditLogEntry
	appendErr error
}

func (s *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	s.entries = append(s.entries, entry)
	return s.appendErr
}

type captureAuditLogger struct {
	warnings []string
}

func (c *captureAuditLogger) Warnf(format string, args ...any) {
	c.warnings = append(c.warnings, strings.TrimSpace(format))
}

func TestAuditLogServiceRecordSanitizesAndHashes(t *testing.T) {
	repo := &stubAuditRepo{}
	logger := &captureAuditLogger{}
	fixed := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Clock: func() time.Time {
			return fixed
		},
		Logger:   logger,
		HashSalt: "pepper:",
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	record := AuditLogRecord{
		Actor:                 "  staff:reviewer-1  ",
		Action:                " mapping.locations.batch ",
		ActorType:             "",
		TargetRef:             " /versions/ver_1/mapping ",
		Severity:              "Warn",
		RequestID:             " req-123 ",
		OccurredAt:            fixed.Add(-time.Minute),
		Metadata:              map[string]any{"email": "Reviewer@example.com", "updates": "3"},
		SensitiveMetadataKeys: []string{"email"},
		Diff: map[string]AuditLogDiff{
			"candidateKey": {Before: "c1", After: "c5"},
		},
		IPAddress: "203.0.113.42 ",
		UserAgent: "TestAgent\r\n",
	}

	svc.Record(context.Background(), record)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]

	if entry.Actor != "staff:reviewer-1" {
		t.Fatalf("unexpected actor: %q", entry.Actor)
	}
	if entry.ActorType != "staff" {
		t.Fatalf("expected actor type staff, got %q", entry.ActorType)
	}
	if entry.TargetRef != "/versions/ver_1/mapping" {
		t.Fatalf("unexpected target ref: %q", entry.TargetRef)
	}
	if entry.Severity != "warn" {
		t.Fatalf("unexpected severity: %q", entry.Severity)
	}
	if entry.RequestID != "req-123" {
		t.Fatalf("expected trimmed request id, got %q", entry.RequestID)
	}
	if entry.UserAgent != "TestAgent" {
		t.Fatalf("expected sanitized user agent, got %q", entry.UserAgent)
	}
	expectedTime := fixed.Add(-time.Minute)
	if !entry.CreatedAt.Equal(expectedTime) {
		t.Fatalf("expected CreatedAt %s, got %s", expectedTime.Format(time.RFC3339Nano), entry.CreatedAt.Format(time.RFC3339Nano))
	}
	if entry.IPHash == "" || !strings.HasPrefix(entry.IPHash, defaultHasherPrefix) {
		t.Fatalf("expected hashed ip, got %q", entry.IPHash)
	}

	email, ok := entry.Metadata["email"].(string)
	if !ok || !strings.HasPrefix(email, defaultHasherPrefix) {
		t.Fatalf("expected hashed email, got %#v", entry.Metadata["email"])
	}
	if updates, ok := entry.Metadata["updates"].(string); !ok || updates != "3" {
		t.Fatalf("expected metadata to be preserved, got %#v", entry.Metadata["updates"])
	}

	diff := entry.Diff["candidateKey"].(map[string]any)
	if diff["before"] != "c1" || diff["after"] != "c5" {
		t.Fatalf("expected diff preserved, got %#v", diff)
	}

	if len(logger.warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", logger.warnings)
	}
}

func TestAuditLogServiceRecordLogsOnFailure(t *testing.T) {
	repo := &stubAuditRepo{appendErr: errors.New("boom")}
	logger := &captureAuditLogger{}

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Actor:     "system",
		Action:    "mapping.delete",
		TargetRef: "/versions/ver_1/mapping",
	})

	if len(logger.warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(logger.warnings))
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected append invoked once, got %d", len(repo.entries))
	}
}

func TestAuditLogServiceHashAnyProducesStableHashes(t *testing.T) {
	repo := &stubAuditRepo{}
	service, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}
	impl := service.(*auditLogService)

	first := map[string]string{"a": "alpha", "b": "bravo"}
	second := map[string]string{"b": "bravo", "a": "alpha"}

	hash1 := impl.hashAny(first)
	hash2 := impl.hashAny(second)

	if hash1 != hash2 {
		t.Fatalf("expected stable hash, got %q and %q", hash1, hash2)
	}
}
