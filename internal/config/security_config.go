package config

const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
)

type SecurityConfig interface {
	GetJWTSecret() string
	GetJWTAlgorithm() string
	GetJWTPrivateKeyFile() string
	GetJWTKeyID() string
	GetIssuer() string
	GetAdminEmails() []string
}

type Security struct {
	src *source
}

var _ SecurityConfig = Security{}

// GetJWTSecret returns the HMAC secret. Empty means one is generated at
// startup, which invalidates every outstanding token on restart.
func (s Security) GetJWTSecret() string {
	return s.src.get("JWT_SECRET", "")
}

func (s Security) GetJWTAlgorithm() string {
	switch alg := s.src.get("JWT_ALGORITHM", AlgorithmHS256); alg {
	case AlgorithmRS256:
		return alg
	default:
		return AlgorithmHS256
	}
}

// GetJWTPrivateKeyFile is the PEM encoded RSA key used with RS256.
func (s Security) GetJWTPrivateKeyFile() string {
	return s.src.get("JWT_PRIVATE_KEY_FILE", "")
}

func (s Security) GetJWTKeyID() string {
	return s.src.get("JWT_KEY_ID", "login-broker-1")
}

func (s Security) GetIssuer() string {
	return s.src.get("JWT_ISSUER", "")
}

// GetAdminEmails lists accounts granted the admin role at startup.
func (s Security) GetAdminEmails() []string {
	return s.src.list("ADMIN_EMAILS", nil)
}
