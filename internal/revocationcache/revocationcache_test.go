package revocationcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Haldir-AI/haldir/internal/haldirlog"
	"github.com/Haldir-AI/haldir/internal/revocation"
)

func TestPutThenGetPersistsAcrossOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "revocations.db")

	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	list := &revocation.List{
		SequenceNumber: 3,
		NextUpdate:     "2026-02-01T00:00:00Z",
		ExpiresAt:      "2026-03-01T00:00:00Z",
	}
	if _, err := c.Put("signer-1", list, now); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	defer c2.Close()

	got, err := c2.Get("signer-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.SequenceNumber != 3 {
		t.Fatalf("expected cached sequence 3, got %+v", got)
	}
}

func TestPutRejectsRollbackAndKeepsCached(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "revocations.db")
	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	if _, err := c.Put("signer-1", &revocation.List{SequenceNumber: 5}, now); err != nil {
		t.Fatalf("Put (5): %v", err)
	}

	verdict, err := c.Put("signer-1", &revocation.List{SequenceNumber: 4}, now)
	if err != nil {
		t.Fatalf("Put (4): %v", err)
	}
	if !verdict.RolledBack {
		t.Fatalf("expected rollback verdict, got %+v", verdict)
	}

	got, err := c.Get("signer-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SequenceNumber != 5 {
		t.Fatalf("expected cache to stay at sequence 5 after rollback attempt, got %d", got.SequenceNumber)
	}
}

func TestSetLoggerAcceptsConfiguredLogger(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "revocations.db")
	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	logger, err := haldirlog.New(true)
	if err != nil {
		t.Fatalf("haldirlog.New: %v", err)
	}
	c.SetLogger(logger)

	if _, err := c.Put("signer-1", &revocation.List{SequenceNumber: 1}, time.Now()); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "revocations.db")
	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	got, err := c.Get("never-seen")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unseen keyid, got %+v", got)
	}
}
