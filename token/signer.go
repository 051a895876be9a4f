package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// hmacKeyInfo binds the derived key to its purpose.
const hmacKeyInfo = "login-broker/jwt/hs256"

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.Claims) (string, error)

	// GetVerificationKey returns the key used to verify the token's signature
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	key []byte
}

// NewHMACSigner derives a 256-bit signing key from secret with HKDF-SHA256.
func NewHMACSigner(secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("HMAC secret is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hmacKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive HMAC key: %w", err)
	}
	return &HMACSigner{key: key}, nil
}

// GenerateSecret returns a random hex secret for deployments that configure none.
func GenerateSecret() (string, error) {
	secret := make([]byte, 32) // 256 bits
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate HMAC secret: %w", err)
	}
	return hex.EncodeToString(secret), nil
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with HMAC: %w", err)
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.key, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}
