// Package shortcode keeps the single-use 6-digit pairing codes that point at
// code-kind login sessions.
package shortcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
)

const (
	defaultCodeTTL = time.Minute
	codeLength     = 6
	minCode        = 100000
	codeSpace      = 900000 // 100000-999999
	maxAttempts    = 32
)

var (
	ErrNotFound = errors.New("short code not found")
	ErrExpired  = errors.New("short code expired")
)

// Code is a live pairing code.
type Code struct {
	Value       string    `json:"code"`
	LoginHandle string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (c Code) expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Registry maps codes to login handles. Redeem finds and deletes a code in
// one step under the registry lock.
type Registry struct {
	mu      sync.Mutex
	codes   map[string]Code
	ttl     time.Duration
	nowFunc func() time.Time
	alive   func(handle string) bool
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

// WithSessionCheck lets SweepExpired drop codes whose login session is gone.
func WithSessionCheck(alive func(handle string) bool) Option {
	return func(r *Registry) {
		r.alive = alive
	}
}

func NewRegistry(options ...Option) *Registry {
	r := &Registry{
		codes:   make(map[string]Code),
		ttl:     defaultCodeTTL,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate short code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+minCode), nil
}

// Create issues a code for handle. The code expires after the TTL or at
// notAfter, whichever comes first, so it never outlives its session.
func (r *Registry) Create(handle string, notAfter time.Time) (Code, error) {
	if handle == "" {
		return Code{}, fmt.Errorf("shortcode.Create: login handle is required: %w", errs.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	expiresAt := now.Add(r.ttl)
	if !notAfter.IsZero() && notAfter.Before(expiresAt) {
		expiresAt = notAfter
	}

	for range maxAttempts {
		value, err := randomCode()
		if err != nil {
			return Code{}, err
		}
		if existing, taken := r.codes[value]; taken && !existing.expired(now) {
			continue
		}
		code := Code{Value: value, LoginHandle: handle, ExpiresAt: expiresAt}
		r.codes[value] = code
		return code, nil
	}
	return Code{}, fmt.Errorf("shortcode.Create: no free code after %d attempts: %w", maxAttempts, errs.ErrIntegrity)
}

// Valid reports whether value has the shape of a code.
func Valid(value string) bool {
	if len(value) != codeLength || value[0] == '0' {
		return false
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Redeem consumes value and returns its login handle. An expired code is
// deleted and reported as ErrExpired.
func (r *Registry) Redeem(value string) (string, error) {
	if !Valid(value) {
		return "", fmt.Errorf("shortcode.Redeem: malformed code: %w", errs.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.codes[value]
	if !ok {
		return "", ErrNotFound
	}
	delete(r.codes, value)
	if code.expired(r.nowFunc()) {
		return "", ErrExpired
	}
	return code.LoginHandle, nil
}

// peek returns the live code without consuming it.
func (r *Registry) peek(value string) (Code, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.codes[value]
	if !ok || code.expired(r.nowFunc()) {
		return Code{}, false
	}
	return code, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

func (r *Registry) Name() string { return "short_codes" }

// SweepExpired deletes codes expired at now and, with a session check
// configured, codes whose session no longer exists.
func (r *Registry) SweepExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for value, code := range r.codes {
		if code.expired(now) || (r.alive != nil && !r.alive(code.LoginHandle)) {
			delete(r.codes, value)
			removed++
		}
	}
	return removed, nil
}
