package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	verrors "github.com/uwezert/verification/internal/platform/errors"
	"github.com/uwezert/verification/internal/services/verification/storage"
)

const (
	defaultPendingLimit = 50
	maxPendingLimit     = 500
)

// RegisterRequest carries one registration attempt.
type RegisterRequest struct {
	UID       string
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string
	IP        string
}

// RegisterResult is the credential handed back to the registrant. Token is
// stable across repeated registrations of the same uid.
type RegisterResult struct {
	UID    string
	Token  string
	Status storage.Status
}

// Register creates or refreshes a participant in the active round and returns
// their submit token. Registration is idempotent on uid: a repeat refreshes
// contact metadata only and hands the original token back.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.register")
	defer span.End()

	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" {
		return RegisterResult{}, verrors.New(verrors.CodeUIDEmpty, "uid is required")
	}

	contestID, err := s.resolveContest(ctx)
	if err != nil {
		return RegisterResult{}, err
	}

	token, err := s.newToken()
	if err != nil {
		return RegisterResult{}, verrors.Wrap(verrors.CodeUnknown, "mint submit token", err)
	}
	stored, err := s.store.UpsertParticipant(ctx, storage.ParticipantSeed{
		UID:          req.UID,
		Token:        token,
		UserID:       req.UserID,
		ChatID:       req.ChatID,
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		CreatedAt:    s.clock(),
		RegisteredIP: req.IP,
		ContestID:    contestID,
	})
	if err != nil {
		return RegisterResult{}, s.storeFailure(span, "register participant", err)
	}

	participant, err := s.store.GetParticipant(ctx, req.UID)
	if err != nil {
		return RegisterResult{}, s.storeFailure(span, "read back participant", err)
	}
	return RegisterResult{
		UID:    req.UID,
		Token:  stored,
		Status: participant.Status,
	}, nil
}

func (s *Service) resolveLocation(ctx context.Context, ip string) (map[string]any, error) {
	if s.resolver == nil || strings.TrimSpace(ip) == "" {
		return nil, nil
	}
	location, err := s.resolver.Lookup(ctx, ip)
	if err != nil {
		if s.cfg.RequireLocation {
			return nil, verrors.Wrap(verrors.CodeGeoLookupFailed, "location resolution failed", err)
		}
		log.Printf("location lookup for %s failed: %v", ip, err)
		return nil, nil
	}
	return location, nil
}

// ConfirmRequest carries one evidence submission.
type ConfirmRequest struct {
	UID       string
	Token     string
	Payload   map[string]any
	IP        string
	UserAgent string
}

// ConfirmResult reports the participant state after the submission landed.
type ConfirmResult struct {
	UID    string
	Status storage.Status
}

// Confirm appends the evidence payload and advances a non-terminal
// participant to the submitted state. The token must match exactly. The
// payload is stored verbatim apart from top-level defaults: uid and a receipt
// timestamp when the client omitted them, plus the resolved client location
// when a resolver is configured. A failed location lookup refuses the
// submission only under the require-location policy.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.confirm")
	defer span.End()

	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" {
		return ConfirmResult{}, verrors.New(verrors.CodeUIDEmpty, "uid is required")
	}

	participant, err := s.store.GetParticipant(ctx, req.UID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ConfirmResult{}, verrors.WithMetadata(verrors.CodeParticipantNotFound,
				"unknown uid", map[string]string{"uid": req.UID})
		}
		return ConfirmResult{}, s.storeFailure(span, "load participant", err)
	}
	if req.Token == "" || participant.Token != req.Token {
		return ConfirmResult{}, verrors.New(verrors.CodeTokenMismatch, "token does not match")
	}

	now := s.clock().UTC()
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["uid"]; !ok {
		payload["uid"] = req.UID
	}
	if _, ok := payload["received_at"]; !ok {
		payload["received_at"] = now.Format(time.RFC3339Nano)
	}
	location, err := s.resolveLocation(ctx, req.IP)
	if err != nil {
		return ConfirmResult{}, err
	}
	if location != nil {
		if _, ok := payload["ip_resolved_location"]; !ok {
			payload["ip_resolved_location"] = location
		}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return ConfirmResult{}, verrors.Wrap(verrors.CodeUnknown, "encode submission payload", err)
	}

	if err := s.store.RecordConfirmation(ctx, storage.Submission{
		UID:         req.UID,
		ReceivedAt:  now,
		IP:          req.IP,
		PayloadJSON: string(encoded),
		UserAgent:   req.UserAgent,
	}); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ConfirmResult{}, verrors.WithMetadata(verrors.CodeParticipantNotFound,
				"unknown uid", map[string]string{"uid": req.UID})
		}
		return ConfirmResult{}, s.storeFailure(span, "record confirmation", err)
	}

	status := storage.StatusSubmitted
	if participant.Status.Terminal() {
		status = participant.Status
	}
	return ConfirmResult{UID: req.UID, Status: status}, nil
}

// Promote conditionally moves a submitted participant into the moderation
// queue. A nil participant with nil error means the participant was not in
// the submitted state, which includes losing the promotion race; callers
// treat that as an idempotent no-op.
func (s *Service) Promote(ctx context.Context, uid string) (*storage.Participant, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.promote")
	defer span.End()

	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, verrors.New(verrors.CodeUIDEmpty, "uid is required")
	}
	participant, err := s.store.PromoteToAwaitingApproval(ctx, uid)
	if err != nil {
		return nil, s.storeFailure(span, "promote participant", err)
	}
	return participant, nil
}

// DecideRequest carries one moderation verdict.
type DecideRequest struct {
	UID       string
	Action    string
	DecidedBy int64
	Note      string
}

// Decide records a terminal verdict with first-write-wins semantics and
// returns the participant as stored, which under a conflicting repeat is the
// original decision, not the requested one.
func (s *Service) Decide(ctx context.Context, req DecideRequest) (storage.Participant, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.decide")
	defer span.End()

	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" {
		return storage.Participant{}, verrors.New(verrors.CodeUIDEmpty, "uid is required")
	}
	decision, err := parseAction(req.Action)
	if err != nil {
		return storage.Participant{}, err
	}

	participant, err := s.store.ApplyDecision(ctx, storage.DecisionSeed{
		UID:       req.UID,
		Decision:  decision,
		DecidedAt: s.clock(),
		DecidedBy: req.DecidedBy,
		Note:      req.Note,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Participant{}, verrors.WithMetadata(verrors.CodeParticipantNotFound,
				"unknown uid", map[string]string{"uid": req.UID})
		}
		return storage.Participant{}, s.storeFailure(span, "apply decision", err)
	}
	return participant, nil
}

func parseAction(action string) (storage.Status, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "approve", "approved":
		return storage.StatusApproved, nil
	case "reject", "rejected":
		return storage.StatusRejected, nil
	}
	return "", verrors.WithMetadata(verrors.CodeActionInvalid,
		"action must be approve or reject", map[string]string{"action": action})
}

// Pending returns the moderation queue for a contest, most recent submission
// first. contestID zero means the active round.
func (s *Service) Pending(ctx context.Context, contestID int64, limit int) ([]storage.PendingSummary, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.pending")
	defer span.End()

	if contestID == 0 {
		resolved, err := s.resolveContest(ctx)
		if err != nil {
			return nil, err
		}
		contestID = resolved
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}
	pending, err := s.store.ListPending(ctx, contestID, limit)
	if err != nil {
		return nil, s.storeFailure(span, "list pending", err)
	}
	return pending, nil
}

// UIDsByStatus returns the uids carrying one lifecycle status within a
// contest. contestID zero means the active round.
func (s *Service) UIDsByStatus(ctx context.Context, contestID int64, status string) ([]string, error) {
	parsed := storage.Status(strings.TrimSpace(status))
	if !parsed.Known() {
		return nil, verrors.WithMetadata(verrors.CodeStatusInvalid,
			"unknown status", map[string]string{"status": status})
	}
	if contestID == 0 {
		resolved, err := s.resolveContest(ctx)
		if err != nil {
			return nil, err
		}
		contestID = resolved
	}
	uids, err := s.store.ListUIDsByStatus(ctx, contestID, parsed)
	if err != nil {
		return nil, s.storeFailure(nil, "list uids by status", err)
	}
	return uids, nil
}

// Participant returns one participant record.
func (s *Service) Participant(ctx context.Context, uid string) (storage.Participant, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return storage.Participant{}, verrors.New(verrors.CodeUIDEmpty, "uid is required")
	}
	participant, err := s.store.GetParticipant(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Participant{}, verrors.WithMetadata(verrors.CodeParticipantNotFound,
				"unknown uid", map[string]string{"uid": uid})
		}
		return storage.Participant{}, s.storeFailure(nil, "get participant", err)
	}
	return participant, nil
}

// LatestSubmission returns the most recent evidence payload for a uid.
func (s *Service) LatestSubmission(ctx context.Context, uid string) (storage.Submission, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return storage.Submission{}, verrors.New(verrors.CodeUIDEmpty, "uid is required")
	}
	submission, err := s.store.LatestSubmission(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Submission{}, verrors.WithMetadata(verrors.CodeSubmissionNotFound,
				"no submission recorded", map[string]string{"uid": uid})
		}
		return storage.Submission{}, s.storeFailure(nil, "get latest submission", err)
	}
	return submission, nil
}
