// Package lifecycle implements the participant verification workflow:
// registration, evidence confirmation, promotion into the moderation queue
// and the terminal approve/reject decision, all scoped to a contest round.
package lifecycle

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	verrors "github.com/uwezert/verification/internal/platform/errors"
	"github.com/uwezert/verification/internal/services/verification/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/uwezert/verification/internal/services/verification/lifecycle")

// LocationResolver reports where a client address appears to be located.
// Implementations must bound their own lookup time.
type LocationResolver interface {
	Lookup(ctx context.Context, ip string) (map[string]any, error)
}

// Config carries the workflow policy knobs.
type Config struct {
	// FallbackContestID scopes registrations when no contest round is
	// active. Zero fails closed: registration is refused until a round
	// exists.
	FallbackContestID int64
	// RequireLocation refuses evidence submission when the client location
	// cannot be resolved. Without it a failed lookup only logs.
	RequireLocation bool
}

// Service coordinates the verification workflow on top of a Store.
type Service struct {
	store    storage.Store
	resolver LocationResolver
	cfg      Config

	clock    func() time.Time
	newToken func() (string, error)
}

// New builds a workflow service. resolver may be nil, which disables
// location checks entirely.
func New(store storage.Store, resolver LocationResolver, cfg Config) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		clock:    time.Now,
		newToken: newSubmitToken,
	}
}

// CreateContest starts a new round and makes it the single active one.
func (s *Service) CreateContest(ctx context.Context, name string) (storage.Contest, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.create_contest")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Contest{}, verrors.New(verrors.CodeContestNameEmpty, "contest name is required")
	}
	contest, err := s.store.CreateContest(ctx, name, s.clock())
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return storage.Contest{}, verrors.WithMetadata(verrors.CodeContestNameTaken,
				"contest name already used", map[string]string{"name": name})
		}
		return storage.Contest{}, s.storeFailure(span, "create contest", err)
	}
	return contest, nil
}

// ActiveContest returns the current round.
func (s *Service) ActiveContest(ctx context.Context) (storage.Contest, error) {
	contest, err := s.store.ActiveContest(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Contest{}, verrors.New(verrors.CodeContestNotFound, "no active contest")
		}
		return storage.Contest{}, s.storeFailure(nil, "get active contest", err)
	}
	return contest, nil
}

// ListContests returns every round, newest first.
func (s *Service) ListContests(ctx context.Context) ([]storage.Contest, error) {
	contests, err := s.store.ListContests(ctx)
	if err != nil {
		return nil, s.storeFailure(nil, "list contests", err)
	}
	return contests, nil
}

// EnsureDefaultContest seeds an initial active round so a fresh deployment
// can accept registrations without an explicit admin call.
func (s *Service) EnsureDefaultContest(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return verrors.New(verrors.CodeContestNameEmpty, "contest name is required")
	}
	if err := s.store.EnsureDefaultContest(ctx, name, s.clock()); err != nil {
		return s.storeFailure(nil, "ensure default contest", err)
	}
	return nil
}

// Reset wipes all verification state. Destructive and admin-only; callers
// gate it behind authentication.
func (s *Service) Reset(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "lifecycle.reset")
	defer span.End()

	if err := s.store.Reset(ctx); err != nil {
		return s.storeFailure(span, "reset", err)
	}
	return nil
}

// resolveContest returns the round new registrations bind to. When no round
// is active the configured fallback applies, or the call fails closed.
func (s *Service) resolveContest(ctx context.Context) (int64, error) {
	contest, err := s.store.ActiveContest(ctx)
	if err == nil {
		return contest.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, s.storeFailure(nil, "resolve contest", err)
	}
	if s.cfg.FallbackContestID > 0 {
		log.Printf("no active contest, falling back to contest %d", s.cfg.FallbackContestID)
		return s.cfg.FallbackContestID, nil
	}
	return 0, verrors.New(verrors.CodeNoActiveContest, "no active contest accepts registrations")
}

// storeFailure classifies a storage error: bounded lock-wait exhaustion is
// retryable, everything else is internal.
func (s *Service) storeFailure(span trace.Span, op string, err error) error {
	if span != nil {
		span.RecordError(err)
	}
	if errors.Is(err, storage.ErrUnavailable) {
		return verrors.Wrap(verrors.CodeStoreUnavailable, op+": store busy", err)
	}
	return verrors.Wrap(verrors.CodeUnknown, op+" failed", err)
}
