package server

import "github.com/jrsteele09/go-login-broker/permissions"

func (s *Server) initRoutes() {
	// LOGIN
	s.RegisterRouteFunc("POST "+RouteAuthLogin, ChainMiddleware(s.BeginLoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthCheck, ChainMiddleware(s.PollLoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthCode, ChainMiddleware(s.IssueShortCodeHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthCodeVerify, ChainMiddleware(s.RedeemShortCodeHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthCallback, ChainMiddleware(s.ProviderCallbackHandler(), s.APIMiddleware()...))

	// TOKENS
	s.RegisterRouteFunc("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAuthValidate, ChainMiddleware(s.ValidateHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAuthPermissions, ChainMiddleware(s.PermissionsHandler(), s.APIMiddleware()...))

	// Protected routes (require a bearer access token carrying the permission)
	s.RegisterRouteFunc("POST "+RouteUserBlock, ChainMiddleware(s.BlockUserHandler(), s.APIMiddleware(s.RequirePermission(permissions.BlockWrite))...))

	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))
	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	}
	if s.jwks != nil {
		s.RegisterRouteFunc("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))
	}
}
