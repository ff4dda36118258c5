package handler

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"school-library/internal/config"
	"school-library/internal/model"
	"school-library/internal/repository"
	"school-library/internal/utils"
)

// ImportExportHandler moves catalog and roster data in and out as CSV.
// Imports are best effort per row: valid rows are inserted and invalid
// ones are reported back with their line numbers, so one bad record does
// not sink a whole file.
type ImportExportHandler struct {
	Cfg   config.Config
	Books *repository.BookRepo
	Users *repository.UserRepo
	Loans *repository.LoanRepo
}

func NewImportExportHandler(cfg config.Config, books *repository.BookRepo, users *repository.UserRepo, loans *repository.LoanRepo) *ImportExportHandler {
	return &ImportExportHandler{Cfg: cfg, Books: books, Users: users, Loans: loans}
}

type importResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// openCSV pulls the uploaded "file" part out of the multipart form and
// returns a reader over it.
func openCSV(c echo.Context) (*csv.Reader, io.Closer, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	return r, f, nil
}

// ImportBooks handles POST /v1/import/books (librarian+).  Expected
// columns: title, authors (";"-separated), isbn, publisher, year,
// total_copies.  The first row is treated as a header.
func (h *ImportExportHandler) ImportBooks(c echo.Context) error {
	r, closer, err := openCSV(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "csv file required in field 'file'"})
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	res := importResult{Errors: []string{}}
	line := 0
	for {
		line++
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if line == 1 {
			continue // header
		}
		if len(rec) < 6 {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: expected 6 columns, got %d", line, len(rec)))
			continue
		}
		title := strings.TrimSpace(rec[0])
		authors := splitAuthors(rec[1])
		total, convErr := strconv.Atoi(strings.TrimSpace(rec[5]))
		if title == "" || len(authors) == 0 || convErr != nil || total < 1 {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: title, authors and a positive total_copies are required", line))
			continue
		}
		var year *int
		if y := strings.TrimSpace(rec[4]); y != "" {
			if n, err := strconv.Atoi(y); err == nil {
				year = &n
			}
		}
		_, err = h.Books.Create(ctx, model.Book{
			Title:       title,
			Authors:     authors,
			ISBN:        strings.TrimSpace(rec[2]),
			Publisher:   strings.TrimSpace(rec[3]),
			Year:        year,
			TotalCopies: total,
		})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		res.Imported++
	}
	return c.JSON(http.StatusOK, res)
}

// ImportUsers handles POST /v1/import/users (admin).  Expected columns:
// username, email, full_name, role, class_name, password.
func (h *ImportExportHandler) ImportUsers(c echo.Context) error {
	r, closer, err := openCSV(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "csv file required in field 'file'"})
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	res := importResult{Errors: []string{}}
	line := 0
	for {
		line++
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if line == 1 {
			continue // header
		}
		if len(rec) < 6 {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: expected 6 columns, got %d", line, len(rec)))
			continue
		}
		req := createUserReq{
			Username: strings.TrimSpace(rec[0]),
			Email:    strings.ToLower(strings.TrimSpace(rec[1])),
			FullName: strings.TrimSpace(rec[2]),
			Role:     strings.ToLower(strings.TrimSpace(rec[3])),
			Password: rec[5],
		}
		if cn := strings.TrimSpace(rec[4]); cn != "" {
			req.ClassName = &cn
		}
		if msg := req.validate(); msg != "" {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %s", line, msg))
			continue
		}
		hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		_, err = h.Users.Create(ctx, model.User{
			Username:     req.Username,
			Email:        req.Email,
			FullName:     req.FullName,
			Role:         req.Role,
			ClassName:    req.ClassName,
			PasswordHash: hash,
			IsActive:     true,
		})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		res.Imported++
	}
	return c.JSON(http.StatusOK, res)
}

// ExportBooks handles GET /v1/export/books (librarian+).
func (h *ImportExportHandler) ExportBooks(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	books, err := h.Books.List(ctx, "", false, 0, 10000)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	w := beginCSV(c, "books.csv")
	_ = w.Write([]string{"id", "title", "authors", "isbn", "publisher", "year", "total_copies", "available_copies"})
	for _, b := range books {
		year := ""
		if b.Year != nil {
			year = strconv.Itoa(*b.Year)
		}
		_ = w.Write([]string{
			strconv.FormatUint(b.ID, 10), b.Title, strings.Join(b.Authors, ";"),
			b.ISBN, b.Publisher, year,
			strconv.Itoa(b.TotalCopies), strconv.Itoa(b.AvailableCopies),
		})
	}
	w.Flush()
	return w.Error()
}

// ExportUsers handles GET /v1/export/users (librarian+).  Password hashes
// are never exported.
func (h *ImportExportHandler) ExportUsers(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx, "", 0, 10000)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	w := beginCSV(c, "users.csv")
	_ = w.Write([]string{"id", "username", "email", "full_name", "role", "class_name", "is_active"})
	for _, u := range users {
		cn := ""
		if u.ClassName != nil {
			cn = *u.ClassName
		}
		_ = w.Write([]string{
			strconv.FormatUint(u.ID, 10), u.Username, u.Email, u.FullName, u.Role, cn,
			strconv.FormatBool(u.IsActive),
		})
	}
	w.Flush()
	return w.Error()
}

// ExportLoans handles GET /v1/export/loans (teacher+).  Status and fines
// are derived at export time like everywhere else.
func (h *ImportExportHandler) ExportLoans(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	now := time.Now().UTC()

	loans, err := h.Loans.List(ctx, repository.LoanFilter{Now: now, Limit: 10000})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	w := beginCSV(c, "loans.csv")
	_ = w.Write([]string{"id", "book_id", "user_id", "borrowed_at", "due_at", "returned_at", "status", "fine_cents"})
	for _, l := range loans {
		returned := ""
		if l.ReturnedAt != nil {
			returned = l.ReturnedAt.UTC().Format(time.RFC3339)
		}
		fine := l.FineCents
		if l.ReturnedAt == nil {
			fine = l.AccruedFineCents(now, h.Cfg.FinePerDayCents)
		}
		_ = w.Write([]string{
			strconv.FormatUint(l.ID, 10),
			strconv.FormatUint(l.BookID, 10),
			strconv.FormatUint(l.UserID, 10),
			l.BorrowedAt.UTC().Format(time.RFC3339),
			l.DueAt.UTC().Format(time.RFC3339),
			returned,
			l.Status(now),
			strconv.FormatInt(fine, 10),
		})
	}
	w.Flush()
	return w.Error()
}

func beginCSV(c echo.Context, filename string) *csv.Writer {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Response().WriteHeader(http.StatusOK)
	return csv.NewWriter(c.Response())
}

func splitAuthors(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
