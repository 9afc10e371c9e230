// Package http exposes the verification workflow as a JSON HTTP API.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	verrors "github.com/uwezert/verification/internal/platform/errors"
	"github.com/uwezert/verification/internal/services/verification/lifecycle"
	"github.com/uwezert/verification/internal/services/verification/storage"
)

// Config defines the inputs for the verification HTTP surface.
type Config struct {
	// AdminAPIKey authenticates moderation calls via the X-API-Key header.
	AdminAPIKey string
	// JWTSecret verifies HS256 bearer tokens as an alternative admin
	// credential. Empty disables bearer auth.
	JWTSecret string
	// AllowedOrigins lists the origins granted cross-origin access. The
	// single entry "*" allows any origin.
	AllowedOrigins []string
}

type handler struct {
	config  Config
	service *lifecycle.Service
}

// NewHandler assembles the route table with CORS, request tagging and admin
// authentication applied.
func NewHandler(config Config, service *lifecycle.Service) http.Handler {
	h := &handler{config: config, service: service}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /confirm", h.handleConfirm)
	mux.HandleFunc("GET /status", h.handleStatus)

	mux.Handle("GET /pending", h.requireAdmin(h.handlePending))
	mux.Handle("GET /uids_by_status", h.requireAdmin(h.handleUIDsByStatus))
	mux.Handle("GET /new_confirmations_for_admin", h.requireAdmin(h.handleNewConfirmations))
	mux.Handle("POST /decision", h.requireAdmin(h.handleDecision))
	mux.Handle("POST /reset", h.requireAdmin(h.handleReset))
	mux.Handle("POST /create_contest", h.requireAdmin(h.handleCreateContest))
	mux.Handle("GET /list_contests", h.requireAdmin(h.handleListContests))

	return requestTagging(h.cors(mux))
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type registerRequest struct {
	UID       string `json:"uid"`
	UserID    int64  `json:"user_id"`
	ChatID    int64  `json:"chat_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.Register(r.Context(), lifecycle.RegisterRequest{
		UID:       req.UID,
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IP:        clientIP(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uid":    result.UID,
		"token":  result.Token,
		"status": result.Status,
	})
}

type confirmRequest struct {
	UID     string         `json:"uid"`
	Token   string         `json:"token"`
	Payload map[string]any `json:"payload"`
}

func (h *handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.Confirm(r.Context(), lifecycle.ConfirmRequest{
		UID:       req.UID,
		Token:     req.Token,
		Payload:   req.Payload,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"uid":    result.UID,
		"status": result.Status,
	})
}

// handleStatus lets a registrant poll their own state. The submit token
// doubles as the read credential so one participant cannot observe another.
// Unknown uids and wrong tokens share one error, so the endpoint does not
// reveal which uids exist.
func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	token := r.URL.Query().Get("token")
	participant, err := h.service.Participant(r.Context(), uid)
	if err != nil {
		if verrors.CodeOf(err) == verrors.CodeParticipantNotFound {
			err = verrors.New(verrors.CodeTokenMismatch, "token does not match")
		}
		writeError(w, r, err)
		return
	}
	if token == "" || participant.Token != token {
		writeError(w, r, verrors.New(verrors.CodeTokenMismatch, "token does not match"))
		return
	}
	body := map[string]any{
		"uid":    participant.UID,
		"status": participant.Status,
	}
	if participant.Decided() {
		body["decision"] = participant.Decision
		body["decided_at"] = participant.DecidedAt
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) handlePending(w http.ResponseWriter, r *http.Request) {
	contestID, ok := queryInt64(w, r, "contest_id")
	if !ok {
		return
	}
	limit, ok := queryInt64(w, r, "limit")
	if !ok {
		return
	}
	pending, err := h.service.Pending(r.Context(), contestID, int(limit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(pending))
	for _, p := range pending {
		items = append(items, map[string]any{
			"uid":              p.UID,
			"user_id":          p.UserID,
			"chat_id":          p.ChatID,
			"username":         p.Username,
			"first_name":       p.FirstName,
			"last_name":        p.LastName,
			"created_at":       p.CreatedAt,
			"last_received_at": p.LastReceivedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": items})
}

// handleUIDsByStatus lists the uids carrying one lifecycle status, for
// moderation tooling that polls a single state.
func (h *handler) handleUIDsByStatus(w http.ResponseWriter, r *http.Request) {
	contestID, ok := queryInt64(w, r, "contest_id")
	if !ok {
		return
	}
	status := r.URL.Query().Get("status")
	uids, err := h.service.UIDsByStatus(r.Context(), contestID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if uids == nil {
		uids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"uids":   uids,
	})
}

// handleNewConfirmations drains freshly submitted participants into the
// moderation queue and reports the ones this call promoted, each carrying the
// full latest evidence payload. Participants promoted by a concurrent call are
// skipped silently, so every submission is announced to at most one moderator
// poll.
func (h *handler) handleNewConfirmations(w http.ResponseWriter, r *http.Request) {
	contestID, ok := queryInt64(w, r, "contest_id")
	if !ok {
		return
	}
	uids, err := h.service.UIDsByStatus(r.Context(), contestID, string(storage.StatusSubmitted))
	if err != nil {
		writeError(w, r, err)
		return
	}
	promoted := make([]map[string]any, 0, len(uids))
	for _, uid := range uids {
		participant, err := h.service.Promote(r.Context(), uid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if participant == nil {
			continue
		}
		payload, err := h.latestPayload(r, participant.UID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		promoted = append(promoted, map[string]any{
			"uid":                participant.UID,
			"user_id":            participant.UserID,
			"chat_id":            participant.ChatID,
			"username":           participant.Username,
			"first_name":         participant.FirstName,
			"last_name":          participant.LastName,
			"status":             participant.Status,
			"submission_payload": payload,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"new": promoted})
}

// latestPayload decodes the most recent evidence document for a uid. A uid
// without submissions maps to an empty document.
func (h *handler) latestPayload(r *http.Request, uid string) (map[string]any, error) {
	payload := map[string]any{}
	submission, err := h.service.LatestSubmission(r.Context(), uid)
	if err != nil {
		if verrors.CodeOf(err) == verrors.CodeSubmissionNotFound {
			return payload, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(submission.PayloadJSON), &payload); err != nil {
		log.Printf("decode submission payload for %s: %v", uid, err)
		return map[string]any{}, nil
	}
	return payload, nil
}

type decisionRequest struct {
	UID       string `json:"uid"`
	Action    string `json:"action"`
	DecidedBy int64  `json:"decided_by"`
	Note      string `json:"note"`
}

func (h *handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	participant, err := h.service.Decide(r.Context(), lifecycle.DecideRequest{
		UID:       req.UID,
		Action:    req.Action,
		DecidedBy: req.DecidedBy,
		Note:      req.Note,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"uid":      participant.UID,
		"status":   participant.Status,
		"decision": participant.Decision,
	})
}

func (h *handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type createContestRequest struct {
	Name string `json:"name"`
}

func (h *handler) handleCreateContest(w http.ResponseWriter, r *http.Request) {
	var req createContestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	contest, err := h.service.CreateContest(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         contest.ID,
		"name":       contest.Name,
		"created_at": contest.CreatedAt,
		"is_active":  contest.IsActive,
	})
}

func (h *handler) handleListContests(w http.ResponseWriter, r *http.Request) {
	contests, err := h.service.ListContests(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(contests))
	for _, contest := range contests {
		items = append(items, map[string]any{
			"id":         contest.ID,
			"name":       contest.Name,
			"created_at": contest.CreatedAt,
			"is_active":  contest.IsActive,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"contests": items})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid JSON body",
		})
		return false
	}
	return true
}

func queryInt64(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": key + " must be an integer",
		})
		return 0, false
	}
	return value, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := verrors.HTTPStatus(err, http.StatusInternalServerError)
	body := map[string]any{
		"error": err.Error(),
		"code":  verrors.CodeOf(err),
	}
	var domainErr *verrors.Error
	if errors.As(err, &domainErr) && len(domainErr.Metadata) > 0 {
		body["details"] = domainErr.Metadata
	}
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
		body["error"] = "internal error"
		delete(body, "details")
	}
	writeJSON(w, status, body)
}
