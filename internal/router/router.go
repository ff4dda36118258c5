package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"school-library/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring probes hit this endpoint.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication endpoints.  Login is public and
// carries the optional rate-limit middleware; me and logout require a valid
// session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, session echo.MiddlewareFunc, limiter ...echo.MiddlewareFunc) {
	pub := e.Group("/v1/auth", limiter...)
	pub.POST("/login", a.Login)

	g := e.Group("/v1/auth", session)
	g.GET("/me", a.Me)
	g.POST("/logout", a.Logout)
}
