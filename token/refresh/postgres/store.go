// Package postgres implements refresh.Store on PostgreSQL.
//
// Expected table:
//
//	CREATE TABLE refresh_tokens (
//	    id            TEXT PRIMARY KEY,
//	    token_value   TEXT NOT NULL UNIQUE,
//	    user_id       TEXT NOT NULL,
//	    device_id     TEXT NOT NULL,
//	    issued_at     TIMESTAMPTZ NOT NULL,
//	    expires_at    TIMESTAMPTZ NOT NULL,
//	    revoked       BOOLEAN NOT NULL DEFAULT FALSE,
//	    revoked_at    TIMESTAMPTZ,
//	    revoked_by    TEXT NOT NULL DEFAULT '',
//	    revoke_reason TEXT NOT NULL DEFAULT '',
//	    replaced_by   TEXT,
//	    last_used_at  TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX refresh_tokens_user_idx ON refresh_tokens (user_id);
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/jrsteele09/go-session-manager/token/refresh"
)

var _ refresh.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, record *refresh.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (
			id, token_value, user_id, device_id,
			issued_at, expires_at, revoked, revoked_at,
			revoked_by, revoke_reason, replaced_by, last_used_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12
		)
	`, record.ID, record.Token, record.UserID, record.DeviceID,
		record.IssuedAt, record.ExpiresAt, record.Revoked, record.RevokedAt,
		record.RevokedBy, record.RevokeReason, record.ReplacedBy, record.LastUsedAt)
	if err != nil {
		return pkgerrors.Wrap(err, "postgres.Store.Create")
	}
	return nil
}

const recordColumns = `
	id, token_value, user_id, device_id,
	issued_at, expires_at, revoked, revoked_at,
	revoked_by, revoke_reason, replaced_by, last_used_at`

func scanRecord(row pgx.Row) (*refresh.Record, error) {
	var r refresh.Record
	err := row.Scan(
		&r.ID,
		&r.Token,
		&r.UserID,
		&r.DeviceID,
		&r.IssuedAt,
		&r.ExpiresAt,
		&r.Revoked,
		&r.RevokedAt,
		&r.RevokedBy,
		&r.RevokeReason,
		&r.ReplacedBy,
		&r.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetByValue(ctx context.Context, value string) (*refresh.Record, error) {
	record, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM refresh_tokens
		WHERE token_value = $1
	`, value))
	if pkgerrors.Is(err, pgx.ErrNoRows) {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "postgres.Store.GetByValue")
	}
	return record, nil
}

func (s *Store) GetActiveByUser(ctx context.Context, userID string) ([]*refresh.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM refresh_tokens
		WHERE user_id = $1
		  AND NOT revoked
		  AND replaced_by IS NULL
		  AND expires_at > now()
		ORDER BY issued_at ASC
	`, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "postgres.Store.GetActiveByUser")
	}
	defer rows.Close()

	records := make([]*refresh.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "postgres.Store.GetActiveByUser scan")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "postgres.Store.GetActiveByUser rows")
	}
	return records, nil
}

// MarkRotated is the rotation guard: the WHERE clause only matches a record
// that has not been rotated or revoked yet, so exactly one of two concurrent
// rotations can succeed.
func (s *Store) MarkRotated(ctx context.Context, id string, replacedBy string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET replaced_by = $2, last_used_at = $3
		WHERE id = $1
		  AND NOT revoked
		  AND replaced_by IS NULL
	`, id, replacedBy, now)
	if err != nil {
		return pkgerrors.Wrap(err, "postgres.Store.MarkRotated")
	}
	if tag.RowsAffected() == 0 {
		return refresh.ErrRotationConflict
	}
	return nil
}

func (s *Store) Extend(ctx context.Context, id string, expiresAt, lastUsedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET expires_at = $2, last_used_at = $3
		WHERE id = $1
		  AND NOT revoked
		  AND replaced_by IS NULL
	`, id, expiresAt, lastUsedAt)
	if err != nil {
		return pkgerrors.Wrap(err, "postgres.Store.Extend")
	}
	if tag.RowsAffected() == 0 {
		return refresh.ErrRotationConflict
	}
	return nil
}

func (s *Store) Revoke(ctx context.Context, id string, now time.Time, revokedBy, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2, revoked_by = $3, revoke_reason = $4
		WHERE id = $1
		  AND NOT revoked
		  AND replaced_by IS NULL
		  AND expires_at > $2
	`, id, now, revokedBy, reason)
	if err != nil {
		return false, pkgerrors.Wrap(err, "postgres.Store.Revoke")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string, now time.Time, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2, revoke_reason = $3
		WHERE user_id = $1
		  AND NOT revoked
		  AND expires_at > $2
	`, userID, now, reason)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "postgres.Store.RevokeAllForUser")
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "postgres.Store.DeleteExpiredBefore")
	}
	return tag.RowsAffected(), nil
}
