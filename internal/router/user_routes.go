package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"school-library/internal/handler"
	"school-library/internal/middleware"
	"school-library/internal/model"
)

// RegisterUsers registers the user administration and CSV import/export
// endpoints.  Reading or updating a single user is allowed for the user
// themselves, with the finer rules (who may change what) living in the
// handler.  Everything that touches other people's accounts in bulk is
// staff-gated by role.
func RegisterUsers(e *echo.Echo, u *handler.UsersHandler, ix *handler.ImportExportHandler, session echo.MiddlewareFunc) {
	g := e.Group("/v1", session)

	g.GET("/users/:id", u.Get)
	g.PUT("/users/:id", u.Update)
	g.PATCH("/users/:id", u.Update) // alias for clients that use PATCH

	staff := g.Group("", middleware.RequireRole(model.RoleTeacher))
	staff.GET("/users", u.List)
	staff.GET("/export/loans", ix.ExportLoans)

	desk := g.Group("", middleware.RequireRole(model.RoleLibrarian))
	desk.GET("/export/books", ix.ExportBooks)
	desk.GET("/export/users", ix.ExportUsers)
	desk.POST("/import/books", ix.ImportBooks)

	admin := g.Group("", middleware.RequireRole(model.RoleAdmin))
	admin.POST("/users", u.Create)
	admin.DELETE("/users/:id", u.Delete)
	admin.POST("/import/users", ix.ImportUsers)
}
