package server

// Route path constants
const (
	// Login flows
	RouteAuthLogin      = "/auth/login"
	RouteAuthCheck      = "/auth/check"
	RouteAuthCode       = "/auth/code"
	RouteAuthCodeVerify = "/auth/code/verify"
	RouteAuthCallback   = "/auth/callback/{provider}"

	// Tokens
	RouteAuthRefresh     = "/auth/refresh"
	RouteAuthLogout      = "/auth/logout"
	RouteAuthValidate    = "/auth/validate"
	RouteAuthPermissions = "/auth/permissions"

	// Users
	RouteUserBlock = "/users/{id}/block"

	// System
	RouteHealth        = "/health"
	RouteMetrics       = "/metrics"
	RouteWellKnownJWKS = "/.well-known/jwks.json"
)
