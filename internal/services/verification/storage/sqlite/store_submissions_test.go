package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uwezert/verification/internal/services/verification/storage"
)

func TestAppendSubmissionAndLatest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	contest := createContest(t, store, "spring", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	registerParticipant(t, store, "u1", contest.ID)

	first := storage.Submission{
		UID:         "u1",
		ReceivedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		IP:          "198.51.100.7",
		PayloadJSON: `{"round":1}`,
		UserAgent:   "curl/8.5",
	}
	second := storage.Submission{
		UID:         "u1",
		ReceivedAt:  time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		PayloadJSON: `{"round":2}`,
	}
	if err := store.AppendSubmission(ctx, first); err != nil {
		t.Fatalf("append first submission: %v", err)
	}
	if err := store.AppendSubmission(ctx, second); err != nil {
		t.Fatalf("append second submission: %v", err)
	}

	latest, err := store.LatestSubmission(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestSubmission: %v", err)
	}
	if latest.PayloadJSON != `{"round":2}` {
		t.Fatalf("latest payload = %q, want the second submission", latest.PayloadJSON)
	}
	if !latest.ReceivedAt.Equal(second.ReceivedAt) {
		t.Fatalf("latest received_at = %v, want %v", latest.ReceivedAt, second.ReceivedAt)
	}
}

func TestAppendSubmissionDefaultsEmptyPayload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	contest := createContest(t, store, "spring", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	registerParticipant(t, store, "u1", contest.ID)

	if err := store.AppendSubmission(ctx, storage.Submission{
		UID:        "u1",
		ReceivedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("AppendSubmission: %v", err)
	}

	latest, err := store.LatestSubmission(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestSubmission: %v", err)
	}
	if latest.PayloadJSON != "{}" {
		t.Fatalf("empty payload stored as %q, want %q", latest.PayloadJSON, "{}")
	}
}

func TestLatestSubmissionMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.LatestSubmission(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("LatestSubmission for unknown uid = %v, want ErrNotFound", err)
	}
}
