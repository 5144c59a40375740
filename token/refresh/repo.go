package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("refresh token not found")

	// ErrRotationConflict is returned when a conditional update loses the race:
	// the record was already rotated or revoked by another caller.
	ErrRotationConflict = errors.New("refresh token already rotated or revoked")
)

// Record is the server-side state of one refresh token. The client only ever
// sees the Token field (an unpredictable random string).
//
// A record is either active (not revoked, not expired, not replaced) or
// terminal; once terminal it is never reactivated. The only mutations are
// flipping to revoked, linking ReplacedBy on rotation, or extending expiry
// when rotation is disabled.
type Record struct {
	ID           string  // Unique record ID
	Token        string  // The random token string (sent to client)
	UserID       string  // Owning user
	DeviceID     string  // Explicit device ID or fingerprint hash
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Revoked      bool
	RevokedAt    *time.Time
	RevokedBy    string  // Optional actor
	RevokeReason string
	ReplacedBy   *string // ID of the successor record, set on rotation
	LastUsedAt   time.Time
}

// Expired reports whether the record's lifetime has passed.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Active reports whether the record can still be used for rotation.
func (r *Record) Active(now time.Time) bool {
	return !r.Revoked && r.ReplacedBy == nil && !r.Expired(now)
}

// Store manages server-side persistence of refresh token records. Lookups are
// exact-match on the unpredictable token value. MarkRotated, Extend and Revoke
// must be atomic conditional writes so that two rotations of the same record
// can never both succeed.
type Store interface {
	Create(ctx context.Context, record *Record) error

	// GetByValue returns the record for a token value, or ErrNotFound.
	GetByValue(ctx context.Context, value string) (*Record, error)

	// GetActiveByUser returns the user's non-revoked, non-replaced,
	// non-expired records ordered oldest first by issued-at.
	GetActiveByUser(ctx context.Context, userID string) ([]*Record, error)

	// MarkRotated consumes the record by linking its successor. It fails with
	// ErrRotationConflict unless the record is still unrevoked and unreplaced.
	MarkRotated(ctx context.Context, id string, replacedBy string, now time.Time) error

	// Extend pushes out expiry and last-used in place (rotation-disabled
	// mode). Same active-only guard as MarkRotated.
	Extend(ctx context.Context, id string, expiresAt, lastUsedAt time.Time) error

	// Revoke marks one record revoked. Returns false when the record does not
	// exist or is already terminal.
	Revoke(ctx context.Context, id string, now time.Time, revokedBy, reason string) (bool, error)

	// RevokeAllForUser revokes every active record for the user and returns
	// how many flipped. Zero is a no-op, not an error.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time, reason string) (int64, error)

	// DeleteExpiredBefore removes records whose expiry predates the cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
