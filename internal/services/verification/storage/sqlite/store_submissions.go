package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uwezert/verification/internal/services/verification/storage"
)

// AppendSubmission inserts one evidence row. The log is append-only; there is
// deliberately no update or delete counterpart.
func (s *Store) AppendSubmission(ctx context.Context, submission storage.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	submission.UID = strings.TrimSpace(submission.UID)
	if submission.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if submission.ReceivedAt.IsZero() {
		return fmt.Errorf("received_at is required")
	}
	if strings.TrimSpace(submission.PayloadJSON) == "" {
		submission.PayloadJSON = "{}"
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO submissions (uid, received_at, ip, payload_json, user_agent)
VALUES (?, ?, ?, ?, ?)
`,
		submission.UID,
		toMillis(submission.ReceivedAt),
		submission.IP,
		submission.PayloadJSON,
		submission.UserAgent,
	); err != nil {
		return wrapStoreErr("append submission", err)
	}
	return nil
}

// RecordConfirmation appends the submission and advances the participant in a
// single transaction, so the log and the status can never diverge. The CASE
// keeps the transition monotone: approved/rejected rows keep their status, and
// re-submitting is a no-op status-wise while the evidence is still appended.
func (s *Store) RecordConfirmation(ctx context.Context, submission storage.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	submission.UID = strings.TrimSpace(submission.UID)
	if submission.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if submission.ReceivedAt.IsZero() {
		return fmt.Errorf("received_at is required")
	}
	if strings.TrimSpace(submission.PayloadJSON) == "" {
		submission.PayloadJSON = "{}"
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreErr("begin confirmation", err)
	}
	result, err := tx.ExecContext(ctx, `
UPDATE participants
SET status = CASE
    WHEN status IN (?, ?) THEN status
    ELSE ?
END
WHERE uid = ?
`,
		string(storage.StatusApproved),
		string(storage.StatusRejected),
		string(storage.StatusSubmitted),
		submission.UID,
	)
	if err != nil {
		_ = tx.Rollback()
		return wrapStoreErr("advance on submission", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("advance on submission rows affected: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return storage.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO submissions (uid, received_at, ip, payload_json, user_agent)
VALUES (?, ?, ?, ?, ?)
`,
		submission.UID,
		toMillis(submission.ReceivedAt),
		submission.IP,
		submission.PayloadJSON,
		submission.UserAgent,
	); err != nil {
		_ = tx.Rollback()
		return wrapStoreErr("append confirmation submission", err)
	}
	if err := tx.Commit(); err != nil {
		return wrapStoreErr("commit confirmation", err)
	}
	return nil
}

// LatestSubmission returns the most recent submission for a uid, ordered by
// insertion sequence. ErrNotFound when the participant never submitted.
func (s *Store) LatestSubmission(ctx context.Context, uid string) (storage.Submission, error) {
	if err := ctx.Err(); err != nil {
		return storage.Submission{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Submission{}, fmt.Errorf("storage is not configured")
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return storage.Submission{}, fmt.Errorf("uid is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, uid, received_at, ip, payload_json, user_agent
FROM submissions
WHERE uid = ?
ORDER BY id DESC
LIMIT 1
`, uid)
	var (
		submission storage.Submission
		receivedAt int64
		ip         sql.NullString
		userAgent  sql.NullString
	)
	if err := row.Scan(
		&submission.ID,
		&submission.UID,
		&receivedAt,
		&ip,
		&submission.PayloadJSON,
		&userAgent,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Submission{}, storage.ErrNotFound
		}
		return storage.Submission{}, fmt.Errorf("get latest submission: %w", err)
	}
	submission.ReceivedAt = fromMillis(receivedAt)
	submission.IP = ip.String
	submission.UserAgent = userAgent.String
	return submission, nil
}
