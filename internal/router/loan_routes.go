package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"school-library/internal/handler"
	"school-library/internal/middleware"
	"school-library/internal/model"
)

// RegisterLoans registers the loan lifecycle and reporting endpoints.
// Listing loans is open to every authenticated principal: the service
// clamps non-staff callers to their own loans, so the endpoint needs no
// role gate of its own.  Creating and returning loans is desk work and
// needs librarian rank, as do the reports.
func RegisterLoans(e *echo.Echo, l *handler.LoansHandler, r *handler.ReportsHandler, session echo.MiddlewareFunc) {
	g := e.Group("/v1", session)

	g.GET("/loans", l.List) // ownership clamp in the service
	g.GET("/loans/my", l.My)
	g.GET("/loans/:id", l.Get) // ownership enforced in the handler

	desk := g.Group("", middleware.RequireRole(model.RoleLibrarian))
	desk.POST("/loans", l.Create)
	desk.POST("/loans/:id/return", l.Return)
	desk.PUT("/loans/:id/return", l.Return) // alias for clients that use PUT

	desk.GET("/reports/dashboard", r.Dashboard)
	desk.GET("/reports/loans", r.LoansReport)
	desk.GET("/reports/books", r.BooksReport)
	desk.GET("/reports/users", r.UsersReport)
}
