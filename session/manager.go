package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-manager/internal/config"
	"github.com/jrsteele09/go-session-manager/token"
	"github.com/jrsteele09/go-session-manager/token/refresh"
	"github.com/jrsteele09/go-session-manager/users"
)

const (
	deviceLimitRevokeReason = "device limit exceeded"
	reuseRevokeReason       = "token reuse detected"
	rotationRevokeActor     = "session-manager"
)

// Session is the result of issuing or refreshing a session: a short-lived
// signed access token plus a long-lived opaque refresh token.
type Session struct {
	AccessToken      string
	AccessClaims     token.Claims
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Manager orchestrates the session lifecycle: issuance, refresh rotation with
// reuse detection, revocation and access token blacklisting. It holds no
// per-call state and is safe for concurrent use from many goroutines.
type Manager struct {
	store     refresh.Store
	issuer    *token.Issuer
	blacklist token.Blacklist
	cfg       config.SessionConfig
	logger    zerolog.Logger
	nowFunc   func() time.Time
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager initializes a Manager with its required dependencies. The
// blacklist may be nil when revocation-before-expiry is disabled.
func NewManager(store refresh.Store, issuer *token.Issuer, blacklist token.Blacklist, cfg config.SessionConfig, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] refresh store is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewManager] token issuer is required")
	}
	if cfg == nil {
		return nil, errors.New("[NewManager] session config is required")
	}

	m := &Manager{
		store:     store,
		issuer:    issuer,
		blacklist: blacklist,
		cfg:       cfg,
		logger:    zerolog.Nop(),
		nowFunc:   time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// IssueSession creates a refresh token record and a fresh access token for a
// validated, active identity. When the user is at the device cap, the oldest
// active record (by issued-at, never the one being created) is revoked first.
func (m *Manager) IssueSession(ctx context.Context, identity users.Identity, ipAddress, userAgent, deviceID string) (*Session, error) {
	now := m.nowFunc()

	if !identity.Active {
		return nil, UserInactiveErr
	}
	if identity.LockedAt(now) {
		return nil, UserLockedErr
	}

	if deviceID == "" {
		deviceID = DeviceFingerprint(ipAddress, userAgent)
	}

	if err := m.enforceDeviceLimit(ctx, identity.ID, now); err != nil {
		return nil, err
	}

	value, err := m.newTokenValue()
	if err != nil {
		return nil, err
	}

	record := &refresh.Record{
		ID:         uuid.New().String(),
		Token:      value,
		UserID:     identity.ID,
		DeviceID:   deviceID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.cfg.GetRefreshTokenExpiry()),
		LastUsedAt: now,
	}
	if err := m.store.Create(ctx, record); err != nil {
		return nil, errors.Wrap(err, "Manager.IssueSession Create")
	}

	accessToken, claims, err := m.issuer.IssueAccessToken(identity.ID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.IssueSession IssueAccessToken")
	}

	return &Session{
		AccessToken:      accessToken,
		AccessClaims:     claims,
		RefreshToken:     value,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

// Refresh validates a presented refresh token value and rotates it: the old
// record is consumed (replaced_by set) and a successor is created carrying the
// same user and device. A value that was already rotated out or revoked is a
// replay signal and fails with TokenReuseDetectedErr; when cascade revoke is
// enabled every remaining session for the user is revoked as well.
//
// With rotation disabled the record is extended in place instead. No chain is
// built in that mode, so replay detection is lost; it is a reduced-security
// configuration.
func (m *Manager) Refresh(ctx context.Context, refreshValue, deviceID string) (*Session, error) {
	now := m.nowFunc()

	record, err := m.store.GetByValue(ctx, refreshValue)
	if errors.Is(err, refresh.ErrNotFound) {
		return nil, InvalidTokenErr
	}
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Refresh GetByValue")
	}

	if record.Expired(now) {
		return nil, ExpiredTokenErr // Cleanup reaps the record later
	}

	if record.Revoked || record.ReplacedBy != nil {
		return nil, m.handleReuse(ctx, record, now)
	}

	if deviceID == "" {
		deviceID = record.DeviceID
	}

	if !m.cfg.GetRotationEnabled() {
		return m.extendInPlace(ctx, record, now)
	}

	successorID := uuid.New().String()
	if err := m.store.MarkRotated(ctx, record.ID, successorID, now); err != nil {
		if errors.Is(err, refresh.ErrRotationConflict) {
			// Lost a concurrent rotation race on the same value.
			m.logger.Warn().
				Str("user_id", record.UserID).
				Str("device_id", record.DeviceID).
				Msg("concurrent refresh rotation detected")
			return nil, TokenReuseDetectedErr
		}
		return nil, errors.Wrap(err, "Manager.Refresh MarkRotated")
	}

	value, err := m.newTokenValue()
	if err != nil {
		return nil, err
	}

	successor := &refresh.Record{
		ID:         successorID,
		Token:      value,
		UserID:     record.UserID,
		DeviceID:   deviceID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.cfg.GetRefreshTokenExpiry()),
		LastUsedAt: now,
	}
	if err := m.store.Create(ctx, successor); err != nil {
		return nil, errors.Wrap(err, "Manager.Refresh Create successor")
	}

	accessToken, claims, err := m.issuer.IssueAccessToken(record.UserID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Refresh IssueAccessToken")
	}

	return &Session{
		AccessToken:      accessToken,
		AccessClaims:     claims,
		RefreshToken:     value,
		RefreshExpiresAt: successor.ExpiresAt,
	}, nil
}

// Revoke marks a single refresh token revoked, leaving the user's other
// devices untouched. Returns false when the value is unknown or the record is
// already terminal.
func (m *Manager) Revoke(ctx context.Context, refreshValue, reason string) (bool, error) {
	record, err := m.store.GetByValue(ctx, refreshValue)
	if errors.Is(err, refresh.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "Manager.Revoke GetByValue")
	}

	revoked, err := m.store.Revoke(ctx, record.ID, m.nowFunc(), "", reason)
	if err != nil {
		return false, errors.Wrap(err, "Manager.Revoke")
	}
	return revoked, nil
}

// RevokeAllForUser revokes every active refresh token for the user ("logout
// all devices"). Revoking nothing is a no-op, not an error, which makes the
// call idempotent.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	count, err := m.store.RevokeAllForUser(ctx, userID, m.nowFunc(), reason)
	if err != nil {
		return 0, errors.Wrap(err, "Manager.RevokeAllForUser")
	}
	if count > 0 {
		m.logger.Info().
			Str("user_id", userID).
			Int64("revoked", count).
			Str("reason", reason).
			Msg("revoked all sessions for user")
	}
	return count, nil
}

// BlacklistAccessToken rejects an access token before its natural expiry by
// caching its jti until then. An already-expired token is a no-op; the entry
// TTL never exceeds the token's own exp.
func (m *Manager) BlacklistAccessToken(ctx context.Context, jti string, accessTokenExpiry time.Time) error {
	if m.blacklist == nil || !m.cfg.GetBlacklistEnabled() {
		return nil
	}
	if !accessTokenExpiry.After(m.nowFunc()) {
		return nil
	}
	if err := m.blacklist.Add(ctx, jti, accessTokenExpiry); err != nil {
		return errors.Wrap(err, "Manager.BlacklistAccessToken")
	}
	return nil
}

// Validate checks an access token's signature, expiry and blacklist status.
func (m *Manager) Validate(ctx context.Context, rawToken string) (token.Validation, error) {
	return m.issuer.Validate(ctx, rawToken)
}

// handleReuse deals with a terminal record presented for rotation: a likely
// stolen or replayed token. The whole remaining chain for the user is revoked
// when cascade revoke is configured.
func (m *Manager) handleReuse(ctx context.Context, record *refresh.Record, now time.Time) error {
	m.logger.Warn().
		Str("user_id", record.UserID).
		Str("device_id", record.DeviceID).
		Bool("was_rotated", record.ReplacedBy != nil).
		Msg("refresh token reuse detected")

	if m.cfg.GetCascadeRevokeEnabled() {
		count, err := m.store.RevokeAllForUser(ctx, record.UserID, now, reuseRevokeReason)
		if err != nil {
			return errors.Wrap(err, "Manager.Refresh cascade revoke")
		}
		if count > 0 {
			m.logger.Warn().
				Str("user_id", record.UserID).
				Int64("revoked", count).
				Msg("cascade revoked user sessions after token reuse")
		}
	}
	return TokenReuseDetectedErr
}

// extendInPlace is the rotation-disabled path: same record, pushed-out expiry.
func (m *Manager) extendInPlace(ctx context.Context, record *refresh.Record, now time.Time) (*Session, error) {
	expiresAt := now.Add(m.cfg.GetRefreshTokenExpiry())
	if err := m.store.Extend(ctx, record.ID, expiresAt, now); err != nil {
		if errors.Is(err, refresh.ErrRotationConflict) {
			return nil, TokenReuseDetectedErr
		}
		return nil, errors.Wrap(err, "Manager.Refresh Extend")
	}

	accessToken, claims, err := m.issuer.IssueAccessToken(record.UserID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Refresh IssueAccessToken")
	}

	return &Session{
		AccessToken:      accessToken,
		AccessClaims:     claims,
		RefreshToken:     record.Token,
		RefreshExpiresAt: expiresAt,
	}, nil
}

// enforceDeviceLimit revokes oldest-first until the user is below the cap.
// Oldest by issued-at, not least recently used: the rule stays auditable. A
// momentary overshoot under concurrent logins is tolerated.
func (m *Manager) enforceDeviceLimit(ctx context.Context, userID string, now time.Time) error {
	maxDevices := m.cfg.GetMaxActiveDevices()
	if maxDevices <= 0 {
		return nil
	}

	active, err := m.store.GetActiveByUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "Manager.IssueSession GetActiveByUser")
	}

	for len(active) >= maxDevices {
		oldest := active[0]
		if _, err := m.store.Revoke(ctx, oldest.ID, now, rotationRevokeActor, deviceLimitRevokeReason); err != nil {
			return errors.Wrap(err, "Manager.IssueSession evict oldest")
		}
		m.logger.Info().
			Str("user_id", userID).
			Str("device_id", oldest.DeviceID).
			Msg("evicted oldest session at device limit")
		active = active[1:]
	}
	return nil
}

func (m *Manager) newTokenValue() (string, error) {
	length := m.cfg.GetRefreshTokenLength()
	if length <= 0 {
		length = 32 // 256 bits
	}
	tokenBytes := make([]byte, length)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "Manager.newTokenValue rand.Read")
	}
	return hex.EncodeToString(tokenBytes), nil
}
