package loginsession

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

const (
	defaultSessionTTL = 5 * time.Minute
	handleBytes       = 32
)

// Registry holds login sessions in memory. Every read-then-mutate sequence
// runs under the registry lock, so a terminal status is delivered to exactly
// one poller.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	nowFunc  func() time.Time
	dropped  func(ctx context.Context, session Session)
}

type Option func(*Registry)

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

// WithUndelivered registers fn for Granted sessions that expire before any
// poll collects their tokens. fn runs outside the registry lock.
func WithUndelivered(fn func(ctx context.Context, session Session)) Option {
	return func(r *Registry) {
		r.dropped = fn
	}
}

func NewRegistry(options ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]Session),
		ttl:      defaultSessionTTL,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func newHandle() (string, error) {
	b := make([]byte, handleBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate login handle: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Create starts a Pending session of the given kind.
func (r *Registry) Create(kind string) (Session, error) {
	if kind == "" {
		return Session{}, fmt.Errorf("loginsession.Create: kind is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var handle string
	for {
		h, err := newHandle()
		if err != nil {
			return Session{}, err
		}
		if _, taken := r.sessions[h]; !taken {
			handle = h
			break
		}
	}

	now := r.nowFunc()
	session := Session{
		Handle:    handle,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	r.sessions[handle] = session
	return session, nil
}

// Lookup returns a copy of a live session. Expired sessions are reported as
// absent but left for Poll or the sweeper to delete.
func (r *Registry) Lookup(handle string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[handle]
	if !ok || session.expired(r.nowFunc()) {
		return Session{}, false
	}
	return copySession(session), true
}

// Exists reports whether handle names a live session.
func (r *Registry) Exists(handle string) bool {
	_, ok := r.Lookup(handle)
	return ok
}

// MarkTerminal moves a live Pending session to the outcome's status. It
// returns false, changing nothing, when the session is missing, expired or
// already terminal.
func (r *Registry) MarkTerminal(handle string, outcome Outcome) bool {
	if outcome.Status != StatusGranted && outcome.Status != StatusDenied {
		return false
	}
	if outcome.Status == StatusGranted && outcome.Tokens == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[handle]
	if !ok || session.Status != StatusPending || session.expired(r.nowFunc()) {
		return false
	}

	session.Status = outcome.Status
	session.Reason = outcome.Reason
	if outcome.Tokens != nil {
		pair := *outcome.Tokens
		session.Tokens = &pair
	}
	r.sessions[handle] = session
	return true
}

// Poll reports the session state. Expired and terminal sessions are deleted
// by the poll that observes them.
func (r *Registry) Poll(handle string) PollResult {
	r.mu.Lock()
	session, ok := r.sessions[handle]
	if ok && session.expired(r.nowFunc()) {
		delete(r.sessions, handle)
		r.mu.Unlock()
		r.undelivered(context.Background(), []Session{session})
		return PollResult{Status: PollExpired}
	}
	defer r.mu.Unlock()

	if !ok {
		return PollResult{Status: PollNotFound}
	}

	switch session.Status {
	case StatusGranted:
		delete(r.sessions, handle)
		return PollResult{Status: PollGranted, Tokens: session.Tokens}
	case StatusDenied:
		delete(r.sessions, handle)
		return PollResult{Status: PollDenied, Reason: session.Reason}
	default:
		return PollResult{Status: PollPending}
	}
}

// Len is the number of stored sessions, including expired ones not yet swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) Name() string { return "login_sessions" }

// SweepExpired deletes sessions expired at now, terminal or not.
func (r *Registry) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	var expired []Session
	for handle, session := range r.sessions {
		if session.expired(now) {
			delete(r.sessions, handle)
			expired = append(expired, session)
		}
	}
	r.mu.Unlock()

	r.undelivered(ctx, expired)
	return len(expired), nil
}

func (r *Registry) undelivered(ctx context.Context, sessions []Session) {
	if r.dropped == nil {
		return
	}
	for _, session := range sessions {
		if session.Status == StatusGranted && session.Tokens != nil {
			r.dropped(ctx, copySession(session))
		}
	}
}

func copySession(s Session) Session {
	if s.Tokens != nil {
		pair := *s.Tokens
		s.Tokens = &pair
	}
	return s
}
