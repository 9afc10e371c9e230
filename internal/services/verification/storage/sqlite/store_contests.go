package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uwezert/verification/internal/services/verification/storage"
)

// CreateContest atomically deactivates the current round and inserts a new
// active one. The single-active invariant holds because both writes share one
// transaction.
func (s *Store) CreateContest(ctx context.Context, name string, now time.Time) (storage.Contest, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Contest{}, fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Contest{}, fmt.Errorf("contest name is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Contest{}, wrapStoreErr("begin create contest", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE contests SET is_active = 0 WHERE is_active = 1`); err != nil {
		_ = tx.Rollback()
		return storage.Contest{}, wrapStoreErr("deactivate contests", err)
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO contests (name, created_at, is_active) VALUES (?, ?, 1)`,
		name, toMillis(now),
	)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err, "contests.name") {
			return storage.Contest{}, storage.ErrAlreadyExists
		}
		return storage.Contest{}, wrapStoreErr("insert contest", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return storage.Contest{}, fmt.Errorf("contest insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Contest{}, wrapStoreErr("commit create contest", err)
	}

	return storage.Contest{
		ID:        id,
		Name:      name,
		CreatedAt: now.UTC(),
		IsActive:  true,
	}, nil
}

// ActiveContest returns the single active round, ErrNotFound when none.
func (s *Store) ActiveContest(ctx context.Context) (storage.Contest, error) {
	if err := ctx.Err(); err != nil {
		return storage.Contest{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Contest{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, created_at, is_active
FROM contests
WHERE is_active = 1
LIMIT 1
`)
	contest, err := scanContest(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Contest{}, storage.ErrNotFound
		}
		return storage.Contest{}, fmt.Errorf("get active contest: %w", err)
	}
	return contest, nil
}

// ListContests returns all rounds, newest first.
func (s *Store) ListContests(ctx context.Context) ([]storage.Contest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, created_at, is_active
FROM contests
ORDER BY created_at DESC, id DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list contests: %w", err)
	}
	defer rows.Close()

	var contests []storage.Contest
	for rows.Next() {
		contest, err := scanContest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan contest row: %w", err)
		}
		contests = append(contests, contest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contest rows: %w", err)
	}
	return contests, nil
}

// EnsureDefaultContest inserts an active round with the given name when no
// round is active yet. Re-running it, or running it while any round is
// active, is a no-op, so the single-active invariant holds.
func (s *Store) EnsureDefaultContest(ctx context.Context, name string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("contest name is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO contests (name, created_at, is_active)
SELECT ?, ?, 1
WHERE NOT EXISTS (SELECT 1 FROM contests WHERE is_active = 1)
`,
		name, toMillis(now),
	); err != nil {
		return wrapStoreErr("ensure default contest", err)
	}
	return nil
}

func scanContest(scan scanner) (storage.Contest, error) {
	var contest storage.Contest
	var createdAt int64
	var isActive int
	if err := scan(&contest.ID, &contest.Name, &createdAt, &isActive); err != nil {
		return storage.Contest{}, err
	}
	contest.CreatedAt = fromMillis(createdAt)
	contest.IsActive = isActive != 0
	return contest, nil
}
