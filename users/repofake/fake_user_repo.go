package userrepofake

import (
	"errors"
	"sync"

	"github.com/jrsteele09/go-session-manager/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	byID    map[string]*users.User
	byEmail map[string]string // email to user ID
	lock    sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		byID:    make(map[string]*users.User),
		byEmail: make(map[string]string),
	}
}

func (r *FakeUserRepo) Upsert(user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.byID[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *FakeUserRepo) Delete(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return errors.New("not found")
	}
	delete(r.byEmail, user.Email)
	delete(r.byID, id)
	return nil
}

func (r *FakeUserRepo) GetByID(id string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return user, nil
}

func (r *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, errors.New("not found")
	}
	return r.byID[id], nil
}
