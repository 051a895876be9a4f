package fakeuserrepo

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/jrsteele09/go-login-broker/permissions"
	"github.com/jrsteele09/go-login-broker/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // email to user id
	nowFunc  func() time.Time
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
		nowFunc:  time.Now,
	}
}

func (ur *FakeUserRepo) FindOrCreate(_ context.Context, email, displayName string, source users.Source) (*users.User, error) {
	email, err := users.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	now := ur.nowFunc()
	if id, ok := ur.emailIds[email]; ok {
		user := ur.users[id]
		user.LastLogin = now
		return user.Clone(), nil
	}

	if displayName == "" {
		displayName = users.GuestName(len(ur.users) + 1)
	}
	user := &users.User{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName,
		Roles:       []string{permissions.DefaultRole},
		Source:      source,
		CreatedAt:   now,
		LastLogin:   now,
	}
	ur.users[user.ID] = user
	ur.emailIds[email] = user.ID
	return user.Clone(), nil
}

func (ur *FakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	email, err := users.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return user.Clone(), nil
}

func (ur *FakeUserRepo) SetBlocked(_ context.Context, id string, blocked bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	user.Blocked = blocked
	return nil
}

func (ur *FakeUserRepo) SetRoles(_ context.Context, id string, roles []string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	user.Roles = slices.Clone(roles)
	return nil
}

func (ur *FakeUserRepo) Count(_ context.Context) (int, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return len(ur.users), nil
}

// Delete removes a user outright. Only tests need it.
func (ur *FakeUserRepo) Delete(id string) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user, ok := ur.users[id]; ok {
		delete(ur.emailIds, user.Email)
		delete(ur.users, id)
	}
}
