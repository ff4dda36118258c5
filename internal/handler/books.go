package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"school-library/internal/model"
	"school-library/internal/repository"
)

// BooksHandler exposes catalog CRUD.  Reads are open to any authenticated
// principal; writes require librarian-level access (enforced by the route
// group).
type BooksHandler struct {
	Books *repository.BookRepo
}

func NewBooksHandler(books *repository.BookRepo) *BooksHandler {
	return &BooksHandler{Books: books}
}

// ----- DTOs -----

type bookResponse struct {
	ID              uint64    `json:"id"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	ISBN            string    `json:"isbn,omitempty"`
	Publisher       string    `json:"publisher,omitempty"`
	Year            *int      `json:"year,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toBookResponse(b model.Book) bookResponse {
	return bookResponse{
		ID:              b.ID,
		Title:           b.Title,
		Authors:         b.Authors,
		ISBN:            b.ISBN,
		Publisher:       b.Publisher,
		Year:            b.Year,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

type bookReq struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	ISBN        string   `json:"isbn"`
	Publisher   string   `json:"publisher"`
	Year        *int     `json:"year"`
	TotalCopies int      `json:"total_copies"`
}

func (r bookReq) validate() string {
	if strings.TrimSpace(r.Title) == "" {
		return "title is required"
	}
	if len(r.Authors) == 0 {
		return "at least one author is required"
	}
	if r.TotalCopies < 1 {
		return "total_copies must be at least 1"
	}
	return ""
}

// List handles GET /v1/books.  Supports ?search=, ?available=true,
// ?skip=, ?limit=.  This route sits behind the response cache.
func (h *BooksHandler) List(c echo.Context) error {
	search := strings.TrimSpace(c.QueryParam("search"))
	availableOnly := c.QueryParam("available") == "true"
	skip, limit := pagination(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	books, err := h.Books.List(ctx, search, availableOnly, skip, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]bookResponse, 0, len(books))
	for _, b := range books {
		out = append(out, toBookResponse(b))
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/books/:id.
func (h *BooksHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	b, err := h.Books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, toBookResponse(b))
}

// Create handles POST /v1/books (librarian+).  A new book starts with all
// copies available.
func (h *BooksHandler) Create(c echo.Context) error {
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Books.Create(ctx, model.Book{
		Title:       strings.TrimSpace(req.Title),
		Authors:     req.Authors,
		ISBN:        strings.TrimSpace(req.ISBN),
		Publisher:   strings.TrimSpace(req.Publisher),
		Year:        req.Year,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create book failed"})
	}
	b, err := h.Books.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load book failed"})
	}
	return c.JSON(http.StatusCreated, toBookResponse(b))
}

// Update handles PUT /v1/books/:id (librarian+).  Shrinking total_copies
// below the number currently on loan clamps availability at zero rather
// than failing; the counter recovers as loans come back.
func (h *BooksHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book id"})
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	b, err := h.Books.Update(ctx, model.Book{
		ID:          id,
		Title:       strings.TrimSpace(req.Title),
		Authors:     req.Authors,
		ISBN:        strings.TrimSpace(req.ISBN),
		Publisher:   strings.TrimSpace(req.Publisher),
		Year:        req.Year,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, toBookResponse(b))
}

// Delete handles DELETE /v1/books/:id (librarian+).  Books with loan
// history cannot be deleted.
func (h *BooksHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Books.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrHasLoans) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "book has loan history"})
		}
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
