package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/joamik/cinema-reservation/internal/handler"    // import the handlers that implement business logic
	"github.com/joamik/cinema-reservation/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance. Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler. This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the admin token exchange. Unauthenticated clients
// post the admin key to /v1/auth/token and receive a signed JWT for the
// protected endpoints.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/token", a.Token)
}

// RegisterShows registers the show command and query endpoints. Creating a
// show requires an ADMIN token; seat commands and reads are open so that
// customers can reserve without an account. The extra middlewares (response
// cache, rate limiting) are applied to the read endpoints only, commands
// must always reach the write side.
func RegisterShows(e *echo.Echo, s *handler.ShowHandler, jwtSecret string, extra ...echo.MiddlewareFunc) {
	admin := e.Group("/v1")
	admin.Use(middleware.JWTAuth(jwtSecret))
	admin.Use(middleware.RequireRole(handler.RoleAdmin))
	admin.POST("/shows", s.CreateShow)

	// Seat commands: no auth, rate limited upstream of the gateway.
	e.PATCH("/v1/shows/:id/seats/:seatNumber", s.PatchSeat)

	// Queries. The list endpoint serves from the read model.
	reads := e.Group("/v1", extra...)
	reads.GET("/shows", s.ListShows)
	reads.GET("/shows/:id", s.GetShow)
}
