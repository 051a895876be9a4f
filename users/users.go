package users

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Source names the flow through which a user first signed in.
type Source string

const (
	SourceGitHub Source = "github"
	SourceYandex Source = "yandex"
	SourceOIDC   Source = "oidc"
	SourceCode   Source = "code"

	// SourceBootstrap marks accounts created from configuration at startup
	SourceBootstrap Source = "bootstrap"
)

type User struct {
	ID          string    `json:"id"`                     // Unique identifier for the user
	Email       string    `json:"email"`                  // Unique, lower-cased email address
	DisplayName string    `json:"display_name,omitempty"` // Name shown to other users
	Roles       []string  `json:"roles"`                  // Role names resolved into permissions at issue time
	Blocked     bool      `json:"blocked"`                // Blocked users cannot obtain or use tokens
	Source      Source    `json:"source,omitempty"`       // First identity provider seen for the user
	CreatedAt   time.Time `json:"created_at"`
	LastLogin   time.Time `json:"last_login"`
}

// NormalizeEmail trims and lower-cases email and checks its shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return "", fmt.Errorf("invalid email %q: %w", email, errs.ErrValidation)
	}
	return email, nil
}

// GuestName is the display name given to the n-th user when the identity
// provider supplies none.
func GuestName(n int) string {
	return fmt.Sprintf("Guest%d", n)
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// Clone returns a copy that shares no slices with u.
func (u *User) Clone() *User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}
