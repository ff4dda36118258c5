package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"school-library/internal/middleware"
	"school-library/internal/model"
	"school-library/internal/repository"
	"school-library/internal/service"
)

// BookSource is the read side of the catalog the handler needs to embed
// book summaries in loan responses.
type BookSource interface {
	GetByID(ctx context.Context, id uint64) (model.Book, error)
}

// UserDirectory is the read side of the user store used to embed borrower
// summaries in loan responses.
type UserDirectory interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// LoansHandler exposes the loan lifecycle.  All authorization and business
// rules live in the loan service; this layer binds requests, translates
// errors to HTTP statuses and enriches responses with book and borrower
// summaries.
type LoansHandler struct {
	Svc   *service.LoanService
	Books BookSource
	Users UserDirectory
}

func NewLoansHandler(svc *service.LoanService, books BookSource, users UserDirectory) *LoansHandler {
	return &LoansHandler{Svc: svc, Books: books, Users: users}
}

// ----- DTOs -----

type createLoanReq struct {
	BookID uint64 `json:"book_id"`
	UserID uint64 `json:"user_id"`
}

type loanResponse struct {
	ID         uint64        `json:"id"`
	BookID     uint64        `json:"book_id"`
	UserID     uint64        `json:"user_id"`
	BorrowedAt time.Time     `json:"borrowed_at"`
	DueAt      time.Time     `json:"due_at"`
	ReturnedAt *time.Time    `json:"returned_at,omitempty"`
	Status     string        `json:"status"`
	FineCents  int64         `json:"fine_cents"`
	Book       *bookResponse `json:"book,omitempty"`
	User       *userResponse `json:"user,omitempty"`
}

// toLoanResponse derives status and fine at `now`: overdue is never stored
// and an outstanding late loan reports the fine it has accrued so far.
func (h *LoansHandler) toLoanResponse(ctx context.Context, l model.Loan, now time.Time, withUser bool) loanResponse {
	out := loanResponse{
		ID:         l.ID,
		BookID:     l.BookID,
		UserID:     l.UserID,
		BorrowedAt: l.BorrowedAt,
		DueAt:      l.DueAt,
		ReturnedAt: l.ReturnedAt,
		Status:     l.Status(now),
		FineCents:  l.AccruedFineCents(now, h.Svc.FinePerDayCents()),
	}
	if b, err := h.Books.GetByID(ctx, l.BookID); err == nil {
		br := toBookResponse(b)
		out.Book = &br
	}
	if withUser {
		if u, err := h.Users.GetByID(ctx, l.UserID); err == nil {
			ur := toUserResponse(u)
			out.User = &ur
		}
	}
	return out
}

func mapLoanErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotPermitted):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrBookNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "book not found"})
	case errors.Is(err, service.ErrBorrowerNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "borrower not found"})
	case errors.Is(err, service.ErrLoanNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "loan not found"})
	case errors.Is(err, service.ErrBorrowerInactive):
		return c.JSON(http.StatusConflict, echo.Map{"error": "borrower is not active"})
	case errors.Is(err, repository.ErrNoCopies):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no copies available"})
	case errors.Is(err, repository.ErrActiveLoanExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "borrower already has this book on loan"})
	case errors.Is(err, repository.ErrAlreadyReturned):
		return c.JSON(http.StatusConflict, echo.Map{"error": "loan already returned"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "loan operation failed"})
	}
}

// Create handles POST /v1/loans (librarian+).
func (h *LoansHandler) Create(c echo.Context) error {
	actor, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.BookID == 0 || req.UserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "book_id and user_id are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	loan, err := h.Svc.CreateLoan(ctx, actor, req.BookID, req.UserID)
	if err != nil {
		return mapLoanErr(c, err)
	}
	return c.JSON(http.StatusCreated, h.toLoanResponse(ctx, loan, h.Svc.Now(), true))
}

// List handles GET /v1/loans.  Staff may filter by ?user_id= and ?status=;
// non-staff callers always get their own loans only.
func (h *LoansHandler) List(c echo.Context) error {
	actor, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	f := repository.LoanFilter{Status: c.QueryParam("status")}
	f.Skip, f.Limit = pagination(c)
	if v := c.QueryParam("user_id"); v != "" {
		uid, err := strconv.ParseUint(v, 10, 64)
		if err != nil || uid == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user_id filter"})
		}
		f.UserID = &uid
	}
	if v := c.QueryParam("book_id"); v != "" {
		bid, err := strconv.ParseUint(v, 10, 64)
		if err != nil || bid == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid book_id filter"})
		}
		f.BookID = &bid
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	loans, err := h.Svc.ListLoans(ctx, actor, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, h.loanList(ctx, actor, loans))
}

// My handles GET /v1/loans/my: the caller's own loans, any role.
func (h *LoansHandler) My(c echo.Context) error {
	actor, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	skip, limit := pagination(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	loans, err := h.Svc.MyLoans(ctx, actor, c.QueryParam("status"), skip, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, h.loanList(ctx, actor, loans))
}

// Get handles GET /v1/loans/:id.
func (h *LoansHandler) Get(c echo.Context) error {
	actor, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid loan id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	loan, err := h.Svc.GetLoan(ctx, actor, id)
	if err != nil {
		return mapLoanErr(c, err)
	}
	withUser := model.Satisfies(actor.Role, model.RoleTeacher)
	return c.JSON(http.StatusOK, h.toLoanResponse(ctx, loan, h.Svc.Now(), withUser))
}

// Return handles POST /v1/loans/:id/return (librarian+).
func (h *LoansHandler) Return(c echo.Context) error {
	actor, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid loan id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	loan, err := h.Svc.ReturnLoan(ctx, actor, id)
	if err != nil {
		return mapLoanErr(c, err)
	}
	return c.JSON(http.StatusOK, h.toLoanResponse(ctx, loan, h.Svc.Now(), true))
}

func (h *LoansHandler) loanList(ctx context.Context, actor model.User, loans []model.Loan) []loanResponse {
	now := h.Svc.Now()
	withUser := model.Satisfies(actor.Role, model.RoleTeacher)
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, h.toLoanResponse(ctx, l, now, withUser))
	}
	return out
}
