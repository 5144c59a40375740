package refreshrepofake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-manager/token/refresh"
)

var _ refresh.Store = (*FakeRefreshStore)(nil)

// FakeRefreshStore is an in-memory Store with the same conditional-update
// semantics as the SQL implementation.
type FakeRefreshStore struct {
	byID    map[string]*refresh.Record
	byValue map[string]string // token value to record ID
	lock    sync.RWMutex

	// NowFunc decides which records count as active. Override in tests.
	NowFunc func() time.Time
}

func NewFakeRefreshStore() *FakeRefreshStore {
	return &FakeRefreshStore{
		byID:    make(map[string]*refresh.Record),
		byValue: make(map[string]string),
		NowFunc: time.Now,
	}
}

func (s *FakeRefreshStore) Create(_ context.Context, record *refresh.Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	clone := *record
	s.byID[clone.ID] = &clone
	s.byValue[clone.Token] = clone.ID
	return nil
}

func (s *FakeRefreshStore) GetByValue(_ context.Context, value string) (*refresh.Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	id, ok := s.byValue[value]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *FakeRefreshStore) GetActiveByUser(_ context.Context, userID string) ([]*refresh.Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	now := s.NowFunc()
	records := make([]*refresh.Record, 0)
	for _, r := range s.byID {
		if r.UserID == userID && r.Active(now) {
			clone := *r
			records = append(records, &clone)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].IssuedAt.Before(records[j].IssuedAt)
	})
	return records, nil
}

func (s *FakeRefreshStore) MarkRotated(_ context.Context, id string, replacedBy string, now time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	record, ok := s.byID[id]
	if !ok {
		return refresh.ErrNotFound
	}
	if record.Revoked || record.ReplacedBy != nil {
		return refresh.ErrRotationConflict
	}
	record.ReplacedBy = &replacedBy
	record.LastUsedAt = now
	return nil
}

func (s *FakeRefreshStore) Extend(_ context.Context, id string, expiresAt, lastUsedAt time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	record, ok := s.byID[id]
	if !ok {
		return refresh.ErrNotFound
	}
	if record.Revoked || record.ReplacedBy != nil {
		return refresh.ErrRotationConflict
	}
	record.ExpiresAt = expiresAt
	record.LastUsedAt = lastUsedAt
	return nil
}

func (s *FakeRefreshStore) Revoke(_ context.Context, id string, now time.Time, revokedBy, reason string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	record, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	if record.Revoked || record.ReplacedBy != nil || record.Expired(now) {
		return false, nil
	}
	record.Revoked = true
	revokedAt := now
	record.RevokedAt = &revokedAt
	record.RevokedBy = revokedBy
	record.RevokeReason = reason
	return true, nil
}

func (s *FakeRefreshStore) RevokeAllForUser(_ context.Context, userID string, now time.Time, reason string) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var revoked int64
	for _, record := range s.byID {
		if record.UserID != userID || record.Revoked || record.Expired(now) {
			continue
		}
		record.Revoked = true
		revokedAt := now
		record.RevokedAt = &revokedAt
		record.RevokeReason = reason
		revoked++
	}
	return revoked, nil
}

func (s *FakeRefreshStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var deleted int64
	for id, record := range s.byID {
		if record.ExpiresAt.Before(cutoff) {
			delete(s.byValue, record.Token)
			delete(s.byID, id)
			deleted++
		}
	}
	return deleted, nil
}
