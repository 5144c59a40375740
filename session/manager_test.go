package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-manager/session"
	"github.com/jrsteele09/go-session-manager/token"
	"github.com/jrsteele09/go-session-manager/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-session-manager/token/refresh/repofake"
	"github.com/jrsteele09/go-session-manager/users"
)

const (
	secretStr     = "1234"
	testUserID    = "user-1"
	testIPAddress = "203.0.113.7"
	testUserAgent = "Mozilla/5.0 (test)"
)

// testConfig implements config.SessionConfig with mutable knobs.
type testConfig struct {
	accessExpiry     time.Duration
	refreshExpiry    time.Duration
	refreshLength    int
	maxDevices       int
	rotationEnabled  bool
	cascadeRevoke    bool
	blacklistEnabled bool
}

func defaultTestConfig() *testConfig {
	return &testConfig{
		accessExpiry:     15 * time.Minute,
		refreshExpiry:    7 * 24 * time.Hour,
		refreshLength:    32,
		maxDevices:       5,
		rotationEnabled:  true,
		cascadeRevoke:    true,
		blacklistEnabled: true,
	}
}

func (c *testConfig) GetIssuer() string                    { return "com.testissuer" }
func (c *testConfig) GetAudience() string                  { return "api" }
func (c *testConfig) GetAccessTokenExpiry() time.Duration  { return c.accessExpiry }
func (c *testConfig) GetRefreshTokenExpiry() time.Duration { return c.refreshExpiry }
func (c *testConfig) GetRefreshTokenLength() int           { return c.refreshLength }
func (c *testConfig) GetMaxActiveDevices() int             { return c.maxDevices }
func (c *testConfig) GetRotationEnabled() bool             { return c.rotationEnabled }
func (c *testConfig) GetCascadeRevokeEnabled() bool        { return c.cascadeRevoke }
func (c *testConfig) GetBlacklistEnabled() bool            { return c.blacklistEnabled }
func (c *testConfig) GetCleanupInterval() time.Duration    { return time.Hour }
func (c *testConfig) GetRetentionGrace() time.Duration     { return 24 * time.Hour }

// fakeClock is a settable clock shared by the manager, issuer, blacklist and
// store in a fixture.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	clock     *fakeClock
	cfg       *testConfig
	store     *refreshrepofake.FakeRefreshStore
	blacklist *token.InMemoryBlacklist
	issuer    *token.Issuer
	manager   *session.Manager
}

func setupTestFixture(t *testing.T, cfg *testConfig) *testFixture {
	t.Helper()

	if cfg == nil {
		cfg = defaultTestConfig()
	}

	clock := newFakeClock()

	store := refreshrepofake.NewFakeRefreshStore()
	store.NowFunc = clock.Now

	blacklist := token.NewInMemoryBlacklistWithNowFunc(clock.Now)

	issuer, err := token.NewIssuer(
		token.NewHMACSigner(secretStr),
		token.WithIssuer(cfg.GetIssuer()),
		token.WithAudience(cfg.GetAudience()),
		token.WithAccessTokenExpiry(cfg.GetAccessTokenExpiry()),
		token.WithBlacklist(blacklist),
		token.WithNowFunc(clock.Now),
	)
	require.NoError(t, err)

	manager, err := session.NewManager(store, issuer, blacklist, cfg, session.WithNowFunc(clock.Now))
	require.NoError(t, err)

	return &testFixture{
		clock:     clock,
		cfg:       cfg,
		store:     store,
		blacklist: blacklist,
		issuer:    issuer,
		manager:   manager,
	}
}

func activeIdentity() users.Identity {
	return users.Identity{ID: testUserID, Active: true}
}

func (f *testFixture) issueSession(t *testing.T, deviceID string) *session.Session {
	t.Helper()
	s, err := f.manager.IssueSession(context.Background(), activeIdentity(), testIPAddress, testUserAgent, deviceID)
	require.NoError(t, err)
	return s
}

func (f *testFixture) activeRecords(t *testing.T) []*refresh.Record {
	t.Helper()
	records, err := f.store.GetActiveByUser(context.Background(), testUserID)
	require.NoError(t, err)
	return records
}

func TestIssueSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	s := f.issueSession(t, "")
	require.NotEmpty(t, s.AccessToken)
	require.NotEmpty(t, s.RefreshToken)
	require.Equal(t, testUserID, s.AccessClaims.Subject)
	require.Equal(t, f.clock.Now().Add(7*24*time.Hour), s.RefreshExpiresAt)

	validation, err := f.manager.Validate(ctx, s.AccessToken)
	require.NoError(t, err)
	require.True(t, validation.Valid)
	require.Equal(t, testUserID, validation.Claims.Subject)

	record, err := f.store.GetByValue(ctx, s.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, record.UserID)
	require.Equal(t, session.DeviceFingerprint(testIPAddress, testUserAgent), record.DeviceID)
}

func TestIssueSessionInactiveUser(t *testing.T) {
	f := setupTestFixture(t, nil)

	_, err := f.manager.IssueSession(context.Background(), users.Identity{ID: testUserID, Active: false}, testIPAddress, testUserAgent, "")
	require.ErrorIs(t, err, session.UserInactiveErr)
}

func TestIssueSessionLockedUser(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	lockedUntil := f.clock.Now().Add(time.Hour)
	identity := users.Identity{ID: testUserID, Active: true, Locked: true, LockedUntil: &lockedUntil}

	_, err := f.manager.IssueSession(ctx, identity, testIPAddress, testUserAgent, "")
	require.ErrorIs(t, err, session.UserLockedErr)

	// Once the lockout expires the user can log in again.
	f.clock.Advance(2 * time.Hour)
	_, err = f.manager.IssueSession(ctx, identity, testIPAddress, testUserAgent, "")
	require.NoError(t, err)
}

func TestDeviceLimitEvictsOldest(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.maxDevices = 2
	f := setupTestFixture(t, cfg)

	f.issueSession(t, "device-a")
	f.clock.Advance(time.Minute)
	f.issueSession(t, "device-b")
	f.clock.Advance(time.Minute)
	f.issueSession(t, "device-c")

	active := f.activeRecords(t)
	require.Len(t, active, 2)
	require.Equal(t, "device-b", active[0].DeviceID)
	require.Equal(t, "device-c", active[1].DeviceID)
}

func TestRefreshRotation(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	first := f.issueSession(t, "device-a")
	f.clock.Advance(5 * time.Minute)

	second, err := f.manager.Refresh(ctx, first.RefreshToken, "")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEqual(t, first.AccessClaims.JTI, second.AccessClaims.JTI)

	// The consumed record is linked to its successor and no longer active.
	old, err := f.store.GetByValue(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, old.ReplacedBy)
	require.False(t, old.Active(f.clock.Now()))

	// The successor carries the device lineage forward.
	successor, err := f.store.GetByValue(ctx, second.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "device-a", successor.DeviceID)
	require.Equal(t, *old.ReplacedBy, successor.ID)
}

func TestRefreshReplayedValueFails(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	first := f.issueSession(t, "device-a")

	_, err := f.manager.Refresh(ctx, first.RefreshToken, "")
	require.NoError(t, err)

	// Replaying the rotated-out value fails, even long after rotation.
	f.clock.Advance(24 * time.Hour)
	_, err = f.manager.Refresh(ctx, first.RefreshToken, "")
	require.ErrorIs(t, err, session.TokenReuseDetectedErr)
}

func TestRefreshReuseCascadeRevokesUser(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	first := f.issueSession(t, "device-a")
	f.issueSession(t, "device-b")

	_, err := f.manager.Refresh(ctx, first.RefreshToken, "")
	require.NoError(t, err)

	_, err = f.manager.Refresh(ctx, first.RefreshToken, "")
	require.ErrorIs(t, err, session.TokenReuseDetectedErr)

	// Cascade revoke took out every remaining session for the user.
	require.Empty(t, f.activeRecords(t))
}

func TestRefreshReuseWithoutCascade(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.cascadeRevoke = false
	f := setupTestFixture(t, cfg)
	ctx := context.Background()

	first := f.issueSession(t, "device-a")

	second, err := f.manager.Refresh(ctx, first.RefreshToken, "")
	require.NoError(t, err)

	_, err = f.manager.Refresh(ctx, first.RefreshToken, "")
	require.ErrorIs(t, err, session.TokenReuseDetectedErr)

	// Without cascade the successor survives and still rotates.
	_, err = f.manager.Refresh(ctx, second.RefreshToken, "")
	require.NoError(t, err)
}

func TestRefreshUnknownValue(t *testing.T) {
	f := setupTestFixture(t, nil)

	_, err := f.manager.Refresh(context.Background(), "no-such-value", "")
	require.ErrorIs(t, err, session.InvalidTokenErr)
}

func TestRefreshExpiredValue(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	s := f.issueSession(t, "device-a")
	f.clock.Advance(8 * 24 * time.Hour)

	_, err := f.manager.Refresh(ctx, s.RefreshToken, "")
	require.ErrorIs(t, err, session.ExpiredTokenErr)
}

func TestRefreshRevokedValueIsReuseSignal(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	s := f.issueSession(t, "device-a")

	revoked, err := f.manager.Revoke(ctx, s.RefreshToken, "logout")
	require.NoError(t, err)
	require.True(t, revoked)

	_, err = f.manager.Refresh(ctx, s.RefreshToken, "")
	require.ErrorIs(t, err, session.TokenReuseDetectedErr)
}

func TestRefreshRotationDisabledExtendsInPlace(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.rotationEnabled = false
	f := setupTestFixture(t, cfg)
	ctx := context.Background()

	s := f.issueSession(t, "device-a")
	f.clock.Advance(time.Hour)

	refreshed, err := f.manager.Refresh(ctx, s.RefreshToken, "")
	require.NoError(t, err)
	require.Equal(t, s.RefreshToken, refreshed.RefreshToken, "same value is extended in place")
	require.Equal(t, f.clock.Now().Add(7*24*time.Hour), refreshed.RefreshExpiresAt)

	// No chain, no replay detection in this mode.
	again, err := f.manager.Refresh(ctx, s.RefreshToken, "")
	require.NoError(t, err)
	require.Equal(t, s.RefreshToken, again.RefreshToken)
}

func TestConcurrentRefreshExactlyOneSucceeds(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.cascadeRevoke = false
	f := setupTestFixture(t, cfg)
	ctx := context.Background()

	s := f.issueSession(t, "device-a")

	const callers = 2
	results := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.manager.Refresh(ctx, s.RefreshToken, "")
		}(i)
	}
	wg.Wait()

	var successes, reuses int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		default:
			require.ErrorIs(t, err, session.TokenReuseDetectedErr)
			reuses++
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, reuses)
}

func TestRevokeUnknownValue(t *testing.T) {
	f := setupTestFixture(t, nil)

	revoked, err := f.manager.Revoke(context.Background(), "no-such-value", "logout")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevokeLeavesOtherDevicesAlone(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	a := f.issueSession(t, "device-a")
	f.issueSession(t, "device-b")

	revoked, err := f.manager.Revoke(ctx, a.RefreshToken, "logout")
	require.NoError(t, err)
	require.True(t, revoked)

	active := f.activeRecords(t)
	require.Len(t, active, 1)
	require.Equal(t, "device-b", active[0].DeviceID)

	// Second revoke of the same value is a no-op.
	revoked, err = f.manager.Revoke(ctx, a.RefreshToken, "logout")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevokeAllForUserIdempotent(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	f.issueSession(t, "device-a")
	f.issueSession(t, "device-b")

	count, err := f.manager.RevokeAllForUser(ctx, testUserID, "logout all")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	count, err = f.manager.RevokeAllForUser(ctx, testUserID, "logout all")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestBlacklistAccessTokenImmediateRevocation(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	s := f.issueSession(t, "")

	validation, err := f.manager.Validate(ctx, s.AccessToken)
	require.NoError(t, err)
	require.True(t, validation.Valid)

	require.NoError(t, f.manager.BlacklistAccessToken(ctx, s.AccessClaims.JTI, s.AccessClaims.ExpiresAt))

	validation, err = f.manager.Validate(ctx, s.AccessToken)
	require.NoError(t, err)
	require.False(t, validation.Valid)
	require.Equal(t, token.ReasonRevoked, validation.Reason)

	// Past exp the token is rejected as expired on its own; the blacklist
	// entry is no longer consulted.
	f.clock.Advance(20 * time.Minute)
	validation, err = f.manager.Validate(ctx, s.AccessToken)
	require.NoError(t, err)
	require.False(t, validation.Valid)
	require.Equal(t, token.ReasonExpired, validation.Reason)
}

func TestBlacklistAccessTokenExpiredIsNoop(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.manager.BlacklistAccessToken(ctx, "jti-past", f.clock.Now().Add(-time.Minute)))

	revoked, err := f.blacklist.IsRevoked(ctx, "jti-past")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestBlacklistDisabled(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.blacklistEnabled = false
	f := setupTestFixture(t, cfg)
	ctx := context.Background()

	s := f.issueSession(t, "")
	require.NoError(t, f.manager.BlacklistAccessToken(ctx, s.AccessClaims.JTI, s.AccessClaims.ExpiresAt))

	revoked, err := f.blacklist.IsRevoked(ctx, s.AccessClaims.JTI)
	require.NoError(t, err)
	require.False(t, revoked)
}

// Full lifecycle: login, rotate at +5m, replay detection, natural access
// token expiry, then logout-all with immediate access token revocation.
func TestSessionLifecycleScenario(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	login := f.issueSession(t, "device-a")

	f.clock.Advance(5 * time.Minute)
	rotated, err := f.manager.Refresh(ctx, login.RefreshToken, "")
	require.NoError(t, err)

	_, err = f.manager.Refresh(ctx, login.RefreshToken, "")
	require.ErrorIs(t, err, session.TokenReuseDetectedErr)

	f.clock.Advance(14 * time.Minute) // +19m from login
	validation, err := f.manager.Validate(ctx, login.AccessToken)
	require.NoError(t, err)
	require.Equal(t, token.ReasonExpired, validation.Reason)

	_, err = f.manager.RevokeAllForUser(ctx, testUserID, "forced logout")
	require.NoError(t, err)
	require.NoError(t, f.manager.BlacklistAccessToken(ctx, rotated.AccessClaims.JTI, rotated.AccessClaims.ExpiresAt))

	validation, err = f.manager.Validate(ctx, rotated.AccessToken)
	require.NoError(t, err)
	require.False(t, validation.Valid)
	require.Equal(t, token.ReasonRevoked, validation.Reason)
}
