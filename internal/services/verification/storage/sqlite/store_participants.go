package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uwezert/verification/internal/services/verification/storage"
)

const participantColumns = `uid, token, user_id, chat_id, username, first_name, last_name,
       created_at, registered_ip, status, decided_at, decision, decision_by, decision_note, contest_id`

// UpsertParticipant inserts the seed or refreshes contact metadata when the
// uid already exists. The conflict clause never touches token, status,
// created_at, registered_ip or contest_id, so a concurrent duplicate
// registration cannot mint a second token: whichever insert wins, the re-read
// inside the same transaction returns its token to every caller.
func (s *Store) UpsertParticipant(ctx context.Context, seed storage.ParticipantSeed) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	seed.UID = strings.TrimSpace(seed.UID)
	if seed.UID == "" {
		return "", fmt.Errorf("uid is required")
	}
	if seed.Token == "" {
		return "", fmt.Errorf("token is required")
	}
	if seed.ContestID <= 0 {
		return "", fmt.Errorf("contest id is required")
	}
	if seed.CreatedAt.IsZero() {
		return "", fmt.Errorf("created_at is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", wrapStoreErr("begin register", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO participants (
    uid, token, user_id, chat_id, username, first_name, last_name,
    created_at, registered_ip, status, contest_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(uid) DO UPDATE SET
    user_id = excluded.user_id,
    chat_id = excluded.chat_id,
    username = excluded.username,
    first_name = excluded.first_name,
    last_name = excluded.last_name
`,
		seed.UID,
		seed.Token,
		seed.UserID,
		seed.ChatID,
		seed.Username,
		seed.FirstName,
		seed.LastName,
		toMillis(seed.CreatedAt),
		seed.RegisteredIP,
		string(storage.StatusRegistered),
		seed.ContestID,
	); err != nil {
		_ = tx.Rollback()
		return "", wrapStoreErr("upsert participant", err)
	}

	var token string
	if err := tx.QueryRowContext(ctx,
		`SELECT token FROM participants WHERE uid = ?`, seed.UID,
	).Scan(&token); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("read back participant token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", wrapStoreErr("commit register", err)
	}
	return token, nil
}

// GetParticipant returns one participant, ErrNotFound on miss.
func (s *Store) GetParticipant(ctx context.Context, uid string) (storage.Participant, error) {
	if err := ctx.Err(); err != nil {
		return storage.Participant{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Participant{}, fmt.Errorf("storage is not configured")
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return storage.Participant{}, fmt.Errorf("uid is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE uid = ?`, uid)
	participant, err := scanParticipant(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Participant{}, storage.ErrNotFound
		}
		return storage.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return participant, nil
}

// PromoteToAwaitingApproval conditionally advances StatusSubmitted to
// StatusAwaitingApproval. The precondition lives in the WHERE clause of a
// single UPDATE and the affected-row count is the sole success signal, so the
// check-and-set is atomic across processes, not just goroutines. Zero rows
// means another caller won the race or the row was not in the prior state;
// both return nil, nil.
func (s *Store) PromoteToAwaitingApproval(ctx context.Context, uid string) (*storage.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE participants SET status = ? WHERE uid = ? AND status = ?`,
		string(storage.StatusAwaitingApproval),
		uid,
		string(storage.StatusSubmitted),
	)
	if err != nil {
		return nil, wrapStoreErr("promote participant", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("promote participant rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	participant, err := s.GetParticipant(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// ApplyDecision records a terminal decision in one conditional UPDATE. When a
// decision already exists, status and decision keep the original value and
// the COALESCEs leave decided_at, decision_by and decision_note at their
// first-ever values, making repeated or conflicting decisions idempotent.
func (s *Store) ApplyDecision(ctx context.Context, seed storage.DecisionSeed) (storage.Participant, error) {
	if err := ctx.Err(); err != nil {
		return storage.Participant{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Participant{}, fmt.Errorf("storage is not configured")
	}
	seed.UID = strings.TrimSpace(seed.UID)
	if seed.UID == "" {
		return storage.Participant{}, fmt.Errorf("uid is required")
	}
	if !seed.Decision.Terminal() {
		return storage.Participant{}, fmt.Errorf("decision %q is not terminal", seed.Decision)
	}
	if seed.DecidedAt.IsZero() {
		return storage.Participant{}, fmt.Errorf("decided_at is required")
	}

	var note sql.NullString
	if strings.TrimSpace(seed.Note) != "" {
		note = sql.NullString{String: seed.Note, Valid: true}
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE participants
SET status = CASE WHEN decision IN (?, ?) THEN decision ELSE ? END,
    decision = CASE WHEN decision IN (?, ?) THEN decision ELSE ? END,
    decided_at = COALESCE(decided_at, ?),
    decision_by = COALESCE(decision_by, ?),
    decision_note = COALESCE(decision_note, ?)
WHERE uid = ?
`,
		string(storage.StatusApproved), string(storage.StatusRejected), string(seed.Decision),
		string(storage.StatusApproved), string(storage.StatusRejected), string(seed.Decision),
		toMillis(seed.DecidedAt),
		seed.DecidedBy,
		note,
		seed.UID,
	)
	if err != nil {
		return storage.Participant{}, wrapStoreErr("apply decision", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Participant{}, fmt.Errorf("apply decision rows affected: %w", err)
	}
	if affected == 0 {
		return storage.Participant{}, storage.ErrNotFound
	}

	return s.GetParticipant(ctx, seed.UID)
}

// ListPending returns awaiting-approval participants of one contest without a
// decision, ordered by their most recent submission time descending. The
// submission timestamp is a correlated lookup, not a stored column.
func (s *Store) ListPending(ctx context.Context, contestID int64, limit int) ([]storage.PendingSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if contestID <= 0 {
		return nil, fmt.Errorf("contest id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT p.uid, p.user_id, p.chat_id, p.username, p.first_name, p.last_name, p.created_at,
       (SELECT s.received_at FROM submissions s WHERE s.uid = p.uid ORDER BY s.id DESC LIMIT 1) AS last_received_at
FROM participants p
WHERE p.contest_id = ?
  AND p.status = ?
  AND (p.decision IS NULL OR p.decision = '')
ORDER BY last_received_at DESC
LIMIT ?
`,
		contestID,
		string(storage.StatusAwaitingApproval),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	summaries := make([]storage.PendingSummary, 0, limit)
	for rows.Next() {
		var (
			summary        storage.PendingSummary
			username       sql.NullString
			firstName      sql.NullString
			lastName       sql.NullString
			createdAt      int64
			lastReceivedAt sql.NullInt64
		)
		if err := rows.Scan(
			&summary.UID,
			&summary.UserID,
			&summary.ChatID,
			&username,
			&firstName,
			&lastName,
			&createdAt,
			&lastReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		summary.Username = username.String
		summary.FirstName = firstName.String
		summary.LastName = lastName.String
		summary.CreatedAt = fromMillis(createdAt)
		if lastReceivedAt.Valid {
			summary.LastReceivedAt = fromMillis(lastReceivedAt.Int64)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending rows: %w", err)
	}
	return summaries, nil
}

// ListUIDsByStatus returns the uids carrying one status within a contest.
func (s *Store) ListUIDsByStatus(ctx context.Context, contestID int64, status storage.Status) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if contestID <= 0 {
		return nil, fmt.Errorf("contest id is required")
	}
	if !status.Known() {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT uid FROM participants WHERE contest_id = ? AND status = ?`,
		contestID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list uids by status: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan uid row: %w", err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uid rows: %w", err)
	}
	return uids, nil
}

func scanParticipant(scan scanner) (storage.Participant, error) {
	var (
		participant  storage.Participant
		username     sql.NullString
		firstName    sql.NullString
		lastName     sql.NullString
		createdAt    int64
		registeredIP sql.NullString
		status       string
		decidedAt    sql.NullInt64
		decision     sql.NullString
		decisionBy   sql.NullInt64
		decisionNote sql.NullString
	)
	if err := scan(
		&participant.UID,
		&participant.Token,
		&participant.UserID,
		&participant.ChatID,
		&username,
		&firstName,
		&lastName,
		&createdAt,
		&registeredIP,
		&status,
		&decidedAt,
		&decision,
		&decisionBy,
		&decisionNote,
		&participant.ContestID,
	); err != nil {
		return storage.Participant{}, err
	}
	participant.Username = username.String
	participant.FirstName = firstName.String
	participant.LastName = lastName.String
	participant.CreatedAt = fromMillis(createdAt)
	participant.RegisteredIP = registeredIP.String
	participant.Status = storage.Status(status)
	if decidedAt.Valid {
		value := fromMillis(decidedAt.Int64)
		participant.DecidedAt = &value
	}
	participant.Decision = storage.Status(decision.String)
	if decisionBy.Valid {
		value := decisionBy.Int64
		participant.DecisionBy = &value
	}
	if decisionNote.Valid {
		value := decisionNote.String
		participant.DecisionNote = &value
	}
	return participant, nil
}
