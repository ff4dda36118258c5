package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"school-library/internal/handler"
	"school-library/internal/middleware"
	"school-library/internal/model"
)

// RegisterCatalog registers the book catalog endpoints under /v1/books.
// Reads are open to every authenticated role and sit behind the optional
// response cache; writes require at least the librarian role.
func RegisterCatalog(e *echo.Echo, b *handler.BooksHandler, session echo.MiddlewareFunc, cache ...echo.MiddlewareFunc) {
	g := e.Group("/v1/books", session)

	reads := g.Group("", cache...)
	reads.GET("", b.List)
	reads.GET("/:id", b.Get)

	w := g.Group("", middleware.RequireRole(model.RoleLibrarian))
	w.POST("", b.Create)
	w.PUT("/:id", b.Update)
	w.PATCH("/:id", b.Update) // alias for clients that use PATCH
	w.DELETE("/:id", b.Delete)
}
