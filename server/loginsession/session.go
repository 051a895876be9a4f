package loginsession

import (
	"time"

	"github.com/jrsteele09/go-login-broker/token"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
)

// KindCode is the auth kind of sessions completed through a short code.
const KindCode = "code"

// Session is one in-flight login attempt correlated by its handle.
type Session struct {
	Handle    string
	Kind      string // Provider name or KindCode
	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time

	// Set only once the session is terminal
	Tokens *token.Pair
	Reason string
}

func (s Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Outcome is the terminal state an external flow reports for a session.
type Outcome struct {
	Status Status
	Tokens *token.Pair
	Reason string
}

func Granted(pair token.Pair) Outcome {
	return Outcome{Status: StatusGranted, Tokens: &pair}
}

func Denied(reason string) Outcome {
	return Outcome{Status: StatusDenied, Reason: reason}
}

type PollStatus string

const (
	PollNotFound PollStatus = "not_found"
	PollExpired  PollStatus = "expired"
	PollPending  PollStatus = "pending"
	PollDenied   PollStatus = "denied"
	PollGranted  PollStatus = "granted"
)

// PollResult is what a client learns from one poll. Tokens is only set for
// PollGranted and Reason only for PollDenied.
type PollResult struct {
	Status PollStatus
	Tokens *token.Pair
	Reason string
}
