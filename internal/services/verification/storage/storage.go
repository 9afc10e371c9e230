// Package storage defines persistence contracts for verification state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict on write.
var ErrAlreadyExists = errors.New("record already exists")

// ErrUnavailable indicates the store could not serve the operation within its
// bounded lock wait. The operation is safe to retry.
var ErrUnavailable = errors.New("store unavailable")

// Status is a participant lifecycle state. Transitions only move forward and
// the decision states are absorbing.
type Status string

const (
	StatusRegistered       Status = "registered"
	StatusSubmitted        Status = "submitted_for_current_contest"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Known reports whether the status is one of the lifecycle states.
func (s Status) Known() bool {
	switch s {
	case StatusRegistered, StatusSubmitted, StatusAwaitingApproval, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Contest stores one moderation round. At most one row is active at a time.
type Contest struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	IsActive  bool
}

// Participant stores one applicant and their lifecycle state. UID is the
// externally supplied primary key; Token is the server-generated capability
// credential required to submit evidence.
type Participant struct {
	UID          string
	Token        string
	UserID       int64
	ChatID       int64
	Username     string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	RegisteredIP string
	Status       Status
	DecidedAt    *time.Time
	Decision     Status
	DecisionBy   *int64
	DecisionNote *string
	ContestID    int64
}

// Decided reports whether a terminal decision has been recorded.
func (p Participant) Decided() bool {
	return p.Decision.Terminal()
}

// ParticipantSeed carries the fields written on first registration. On a uid
// conflict only the contact metadata (user/chat ids and names) is refreshed;
// token, status, contest binding and creation data keep their first values.
type ParticipantSeed struct {
	UID          string
	Token        string
	UserID       int64
	ChatID       int64
	Username     string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	RegisteredIP string
	ContestID    int64
}

// DecisionSeed carries one moderation decision. The first decision recorded
// for a uid wins; later seeds leave every decision field untouched.
type DecisionSeed struct {
	UID       string
	Decision  Status
	DecidedAt time.Time
	DecidedBy int64
	Note      string
}

// Submission stores one raw evidence payload, append-only.
type Submission struct {
	ID          int64
	UID         string
	ReceivedAt  time.Time
	IP          string
	PayloadJSON string
	UserAgent   string
}

// PendingSummary is one moderation-queue row joined against the most recent
// submission for the participant.
type PendingSummary struct {
	UID            string
	UserID         int64
	ChatID         int64
	Username       string
	FirstName      string
	LastName       string
	CreatedAt      time.Time
	LastReceivedAt time.Time
}

// ContestStore persists moderation rounds.
type ContestStore interface {
	// CreateContest deactivates the current round and inserts a new active
	// one atomically. A duplicate name yields ErrAlreadyExists.
	CreateContest(ctx context.Context, name string, now time.Time) (Contest, error)
	// ActiveContest returns the single active round, ErrNotFound when none.
	ActiveContest(ctx context.Context) (Contest, error)
	// ListContests returns all rounds, newest first.
	ListContests(ctx context.Context) ([]Contest, error)
	// EnsureDefaultContest inserts an active round with the given name when
	// no contest of that name exists yet.
	EnsureDefaultContest(ctx context.Context, name string, now time.Time) error
}

// ParticipantStore persists applicant lifecycle state.
type ParticipantStore interface {
	// UpsertParticipant inserts the seed or, when the uid already exists,
	// refreshes only its contact metadata. It returns the stored token,
	// which under a concurrent first-registration race is the winner's.
	UpsertParticipant(ctx context.Context, seed ParticipantSeed) (string, error)
	// GetParticipant returns one participant, ErrNotFound on miss.
	GetParticipant(ctx context.Context, uid string) (Participant, error)
	// RecordConfirmation appends the submission and advances a non-terminal
	// participant to StatusSubmitted in one transaction. Terminal statuses
	// keep their value while the submission is still appended.
	RecordConfirmation(ctx context.Context, submission Submission) error
	// PromoteToAwaitingApproval conditionally moves StatusSubmitted to
	// StatusAwaitingApproval. It returns nil, nil when the row was not in
	// the expected prior state; losing a concurrent race is not an error.
	PromoteToAwaitingApproval(ctx context.Context, uid string) (*Participant, error)
	// ApplyDecision records a terminal decision with first-write-wins
	// semantics and returns the resulting participant.
	ApplyDecision(ctx context.Context, seed DecisionSeed) (Participant, error)
	// ListPending returns awaiting-approval participants of one contest
	// without a decision, ordered by latest submission time descending.
	ListPending(ctx context.Context, contestID int64, limit int) ([]PendingSummary, error)
	// ListUIDsByStatus returns the uids with the given status in a contest.
	ListUIDsByStatus(ctx context.Context, contestID int64, status Status) ([]string, error)
}

// SubmissionStore persists the append-only evidence log.
type SubmissionStore interface {
	// AppendSubmission inserts one submission row.
	AppendSubmission(ctx context.Context, submission Submission) error
	// LatestSubmission returns the most recent submission for a uid,
	// ErrNotFound when the participant never submitted.
	LatestSubmission(ctx context.Context, uid string) (Submission, error)
}

// Store combines all verification persistence contracts.
type Store interface {
	ContestStore
	ParticipantStore
	SubmissionStore
	// Reset wipes submissions, participants and contests entirely.
	Reset(ctx context.Context) error
}
