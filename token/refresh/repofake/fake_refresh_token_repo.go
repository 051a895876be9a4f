package refreshrepofake

import (
	"context"
	"sync"
	"time"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/jrsteele09/go-login-broker/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens map[string]refresh.Record
	byUser map[string]map[string]struct{} // user ID to its tokens
	lock   sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[string]refresh.Record),
		byUser: make(map[string]map[string]struct{}),
	}
}

func (tr *FakeRefreshTokenRepo) Insert(_ context.Context, record *refresh.Record) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := tr.tokens[record.Token]; ok {
		return errs.ErrDuplicateToken
	}
	tr.add(*record)
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(_ context.Context, token string) (*refresh.Record, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	record, ok := tr.tokens[token]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &record, nil
}

func (tr *FakeRefreshTokenRepo) Delete(_ context.Context, token string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.remove(token)
	return nil
}

func (tr *FakeRefreshTokenRepo) Rotate(_ context.Context, old string, next *refresh.Record, now time.Time) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	current, ok := tr.tokens[old]
	if !ok || current.Expired(now) || current.UserID != next.UserID {
		return errs.ErrStaleToken
	}
	if _, ok := tr.tokens[next.Token]; ok {
		return errs.ErrDuplicateToken
	}
	tr.remove(old)
	tr.add(*next)
	return nil
}

func (tr *FakeRefreshTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	removed := 0
	for token, record := range tr.tokens {
		if record.Expired(now) {
			tr.remove(token)
			removed++
		}
	}
	return removed, nil
}

func (tr *FakeRefreshTokenRepo) DeleteByUser(_ context.Context, userID string) (int, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tokens := tr.byUser[userID]
	for token := range tokens {
		delete(tr.tokens, token)
	}
	delete(tr.byUser, userID)
	return len(tokens), nil
}

// Len is the number of stored records, expired or not.
func (tr *FakeRefreshTokenRepo) Len() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.tokens)
}

func (tr *FakeRefreshTokenRepo) add(record refresh.Record) {
	tr.tokens[record.Token] = record
	if tr.byUser[record.UserID] == nil {
		tr.byUser[record.UserID] = make(map[string]struct{})
	}
	tr.byUser[record.UserID][record.Token] = struct{}{}
}

func (tr *FakeRefreshTokenRepo) remove(token string) {
	record, ok := tr.tokens[token]
	if !ok {
		return
	}
	delete(tr.tokens, token)
	if userTokens := tr.byUser[record.UserID]; userTokens != nil {
		delete(userTokens, token)
		if len(userTokens) == 0 {
			delete(tr.byUser, record.UserID)
		}
	}
}
