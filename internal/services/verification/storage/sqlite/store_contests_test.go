package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uwezert/verification/internal/services/verification/storage"
)

func TestCreateContestActivatesNewRound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := createContest(t, store, "spring", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	second := createContest(t, store, "summer", time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))

	active, err := store.ActiveContest(ctx)
	if err != nil {
		t.Fatalf("ActiveContest: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("active contest id = %d, want %d", active.ID, second.ID)
	}
	if active.Name != "summer" {
		t.Fatalf("active contest name = %q, want %q", active.Name, "summer")
	}

	contests, err := store.ListContests(ctx)
	if err != nil {
		t.Fatalf("ListContests: %v", err)
	}
	if len(contests) != 2 {
		t.Fatalf("len(contests) = %d, want 2", len(contests))
	}
	if contests[0].ID != second.ID || contests[1].ID != first.ID {
		t.Fatalf("contest order = [%d %d], want [%d %d]", contests[0].ID, contests[1].ID, second.ID, first.ID)
	}
	if contests[1].IsActive {
		t.Fatal("previous contest is still active after a new round was created")
	}
}

func TestCreateContestDuplicateName(t *testing.T) {
	store := newTestStore(t)
	createContest(t, store, "spring", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	_, err := store.CreateContest(context.Background(), "spring", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate CreateContest = %v, want ErrAlreadyExists", err)
	}

	active, err := store.ActiveContest(context.Background())
	if err != nil {
		t.Fatalf("ActiveContest: %v", err)
	}
	if !active.IsActive || active.Name != "spring" {
		t.Fatalf("active contest after failed create = %+v, want original active round", active)
	}
}

func TestActiveContestMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.ActiveContest(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("ActiveContest on empty store = %v, want ErrNotFound", err)
	}
}

func TestEnsureDefaultContestIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedTime := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.EnsureDefaultContest(ctx, "default", seedTime); err != nil {
		t.Fatalf("EnsureDefaultContest: %v", err)
	}
	if err := store.EnsureDefaultContest(ctx, "default", seedTime.Add(time.Hour)); err != nil {
		t.Fatalf("EnsureDefaultContest replay: %v", err)
	}

	contests, err := store.ListContests(ctx)
	if err != nil {
		t.Fatalf("ListContests: %v", err)
	}
	if len(contests) != 1 {
		t.Fatalf("len(contests) = %d, want 1", len(contests))
	}
	if !contests[0].CreatedAt.Equal(seedTime) {
		t.Fatalf("contest created_at = %v, want first seed time %v", contests[0].CreatedAt, seedTime)
	}
}

func TestEnsureDefaultContestKeepsSingleActiveRound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	spring := createContest(t, store, "spring", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	if err := store.EnsureDefaultContest(ctx, "default", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("EnsureDefaultContest with an active round: %v", err)
	}

	contests, err := store.ListContests(ctx)
	if err != nil {
		t.Fatalf("ListContests: %v", err)
	}
	activeCount := 0
	for _, contest := range contests {
		if contest.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("active contests = %d, want 1", activeCount)
	}

	active, err := store.ActiveContest(ctx)
	if err != nil {
		t.Fatalf("ActiveContest: %v", err)
	}
	if active.ID != spring.ID {
		t.Fatalf("active contest = %q, want the existing round %q", active.Name, spring.Name)
	}
}
