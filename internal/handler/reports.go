package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"school-library/internal/model"
	"school-library/internal/repository"
)

// The reporting endpoints only ever read, but they read wide: each one is
// a couple of aggregate queries stitched together here.  Overdue states and
// projected fines are always computed against the current clock rather
// than stored.

// ReportBooks is the slice of the catalog store the reports need.
type ReportBooks interface {
	Stats(ctx context.Context) (titles, copies, available int, err error)
	Report(ctx context.Context, availability string) ([]repository.BookReportRow, error)
}

// ReportUsers is the slice of the user store the reports need.
type ReportUsers interface {
	CountByRole(ctx context.Context) (map[string]int, error)
	Report(ctx context.Context, role, className string, now time.Time) ([]repository.UserReportRow, error)
}

// ReportLoans is the slice of the loan store the reports need.
type ReportLoans interface {
	Counts(ctx context.Context, now time.Time) (active, overdue int, err error)
	OverdueDues(ctx context.Context, now time.Time) ([]time.Time, error)
	Report(ctx context.Context, f repository.LoanReportFilter) ([]repository.LoanReportRow, error)
	PopularBooks(ctx context.Context, since time.Time, limit int) ([]repository.PopularBook, error)
	RecentActivity(ctx context.Context, limit int) ([]repository.LoanActivity, error)
	MonthlyStats(ctx context.Context, since time.Time) ([]repository.MonthlyLoanStats, error)
}

// ReportsHandler serves aggregate statistics for library staff.
type ReportsHandler struct {
	Books           ReportBooks
	Users           ReportUsers
	Loans           ReportLoans
	FinePerDayCents int64
}

func NewReportsHandler(books ReportBooks, users ReportUsers, loans ReportLoans, finePerDayCents int64) *ReportsHandler {
	return &ReportsHandler{Books: books, Users: users, Loans: loans, FinePerDayCents: finePerDayCents}
}

// ----- dashboard -----

type popularBookResp struct {
	BookID    uint64   `json:"book_id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	LoanCount int      `json:"loan_count"`
}

type activityResp struct {
	LoanID     uint64     `json:"loan_id"`
	BookTitle  string     `json:"book_title"`
	UserName   string     `json:"user_name"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	Status     string     `json:"status"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

type monthlyStatsResp struct {
	Month         string `json:"month"`
	TotalLoans    int    `json:"total_loans"`
	ReturnedLoans int    `json:"returned_loans"`
	ActiveLoans   int    `json:"active_loans"`
}

type dashboardResp struct {
	Books struct {
		Titles          int `json:"titles"`
		TotalCopies     int `json:"total_copies"`
		AvailableCopies int `json:"available_copies"`
	} `json:"books"`
	Loans struct {
		Active                int   `json:"active"`
		Overdue               int   `json:"overdue"`
		OutstandingFinesCents int64 `json:"outstanding_fines_cents"`
	} `json:"loans"`
	UsersByRole    map[string]int     `json:"users_by_role"`
	PopularBooks   []popularBookResp  `json:"popular_books"`
	RecentActivity []activityResp     `json:"recent_activity"`
	MonthlyStats   []monthlyStatsResp `json:"monthly_stats"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// Dashboard handles GET /v1/reports/dashboard (librarian+).  Popular books
// cover the last 30 days, the activity feed the last 10 loans and the
// monthly series the last 6 months.
func (h *ReportsHandler) Dashboard(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	now := time.Now().UTC()

	var resp dashboardResp
	resp.GeneratedAt = now

	titles, copies, available, err := h.Books.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp.Books.Titles = titles
	resp.Books.TotalCopies = copies
	resp.Books.AvailableCopies = available

	active, overdue, err := h.Loans.Counts(ctx, now)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp.Loans.Active = active
	resp.Loans.Overdue = overdue

	dues, err := h.Loans.OverdueDues(ctx, now)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	for _, due := range dues {
		resp.Loans.OutstandingFinesCents += model.FineCents(due, now, h.FinePerDayCents)
	}

	byRole, err := h.Users.CountByRole(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp.UsersByRole = byRole

	popular, err := h.Loans.PopularBooks(ctx, now.AddDate(0, 0, -30), 5)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp.PopularBooks = make([]popularBookResp, 0, len(popular))
	for _, p := range popular {
		resp.PopularBooks = append(resp.PopularBooks, popularBookResp{
			BookID: p.BookID, Title: p.Title, Authors: p.Authors, LoanCount: p.LoanCount,
		})
	}

	recent, err := h.Loans.RecentActivity(ctx, 10)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp.RecentActivity = make([]activityResp, 0, len(recent))
	for _, a := range recent {
		l := model.Loan{DueAt: a.DueAt, ReturnedAt: a.ReturnedAt}
		resp.RecentActivity = append(resp.RecentActivity, activityResp{
			LoanID:     a.LoanID,
			BookTitle:  a.BookTitle,
			UserName:   a.UserName,
			BorrowedAt: a.BorrowedAt,
			DueAt:      a.DueAt,
			Status:     l.Status(now),
			ReturnedAt: a.ReturnedAt,
		})
	}

	months, err := h.Loans.MonthlyStats(ctx, now.AddDate(0, -6, 0))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	resp.MonthlyStats = make([]monthlyStatsResp, 0, len(months))
	for _, m := range months {
		resp.MonthlyStats = append(resp.MonthlyStats, monthlyStatsResp{
			Month:         m.Month,
			TotalLoans:    m.TotalLoans,
			ReturnedLoans: m.ReturnedLoans,
			ActiveLoans:   m.TotalLoans - m.ReturnedLoans,
		})
	}

	return c.JSON(http.StatusOK, resp)
}

// ----- loans report -----

type loanReportRow struct {
	ID          uint64     `json:"id"`
	BookID      uint64     `json:"book_id"`
	BookTitle   string     `json:"book_title"`
	BookAuthors []string   `json:"book_authors"`
	UserID      uint64     `json:"user_id"`
	UserName    string     `json:"user_name"`
	UserRole    string     `json:"user_role"`
	UserClass   *string    `json:"user_class,omitempty"`
	BorrowedAt  time.Time  `json:"borrowed_at"`
	DueAt       time.Time  `json:"due_at"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	Status      string     `json:"status"`
	FineCents   int64      `json:"fine_cents"`
	DaysOverdue int64      `json:"days_overdue"`
}

type loansReportResp struct {
	Summary struct {
		TotalLoans      int            `json:"total_loans"`
		TotalFinesCents int64          `json:"total_fines_cents"`
		StatusBreakdown map[string]int `json:"status_breakdown"`
	} `json:"summary"`
	Loans       []loanReportRow `json:"loans"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// parseReportDate accepts a bare date or a full RFC 3339 timestamp.
func parseReportDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// LoansReport handles GET /v1/reports/loans (librarian+).  Optional query
// parameters: start_date and end_date bound borrowed_at, status keeps only
// loans in that state and user_role keeps only borrowers of that role.
func (h *ReportsHandler) LoansReport(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	now := time.Now().UTC()

	f := repository.LoanReportFilter{Now: now}
	if s := c.QueryParam("start_date"); s != "" {
		t, err := parseReportDate(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start_date"})
		}
		f.From = &t
	}
	if s := c.QueryParam("end_date"); s != "" {
		t, err := parseReportDate(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end_date"})
		}
		f.To = &t
	}
	switch s := c.QueryParam("status"); s {
	case "", model.LoanStatusBorrowed, model.LoanStatusOverdue, model.LoanStatusReturned:
		f.Status = s
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}
	if s := c.QueryParam("user_role"); s != "" {
		if !model.ValidRole(s) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user_role"})
		}
		f.UserRole = s
	}

	rows, err := h.Loans.Report(ctx, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	var resp loansReportResp
	resp.GeneratedAt = now
	resp.Summary.StatusBreakdown = map[string]int{}
	resp.Loans = make([]loanReportRow, 0, len(rows))
	for _, r := range rows {
		status := r.Loan.Status(now)
		fine := r.Loan.AccruedFineCents(now, h.FinePerDayCents)
		var daysOverdue int64
		if status == model.LoanStatusOverdue {
			daysOverdue = model.LateDays(r.Loan.DueAt, now)
		}
		resp.Summary.TotalFinesCents += fine
		resp.Summary.StatusBreakdown[status]++
		resp.Loans = append(resp.Loans, loanReportRow{
			ID:          r.Loan.ID,
			BookID:      r.Loan.BookID,
			BookTitle:   r.BookTitle,
			BookAuthors: r.BookAuthors,
			UserID:      r.Loan.UserID,
			UserName:    r.UserName,
			UserRole:    r.UserRole,
			UserClass:   r.UserClass,
			BorrowedAt:  r.Loan.BorrowedAt,
			DueAt:       r.Loan.DueAt,
			ReturnedAt:  r.Loan.ReturnedAt,
			Status:      status,
			FineCents:   fine,
			DaysOverdue: daysOverdue,
		})
	}
	resp.Summary.TotalLoans = len(resp.Loans)

	return c.JSON(http.StatusOK, resp)
}

// ----- books report -----

type bookReportRow struct {
	ID              uint64   `json:"id"`
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	ISBN            string   `json:"isbn"`
	TotalCopies     int      `json:"total_copies"`
	AvailableCopies int      `json:"available_copies"`
	TotalLoans      int      `json:"total_loans"`
	ActiveLoans     int      `json:"active_loans"`
	PopularityScore float64  `json:"popularity_score"`
}

type booksReportResp struct {
	Summary struct {
		TotalBooks           int     `json:"total_books"`
		TotalCopies          int     `json:"total_copies"`
		AvailableCopies      int     `json:"available_copies"`
		LoanRate             float64 `json:"loan_rate"`
		TotalHistoricalLoans int     `json:"total_historical_loans"`
	} `json:"summary"`
	Books       []bookReportRow `json:"books"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// BooksReport handles GET /v1/reports/books (librarian+).  The optional
// availability parameter is "available", "unavailable" or "all".  The
// popularity score is lifetime loans per owned copy and loan_rate is the
// share of copies currently out.
func (h *ReportsHandler) BooksReport(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	now := time.Now().UTC()

	availability := c.QueryParam("availability")
	switch availability {
	case "", "all":
		availability = ""
	case "available", "unavailable":
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid availability"})
	}

	rows, err := h.Books.Report(ctx, availability)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	var resp booksReportResp
	resp.GeneratedAt = now
	resp.Books = make([]bookReportRow, 0, len(rows))
	for _, r := range rows {
		copies := r.Book.TotalCopies
		if copies < 1 {
			copies = 1
		}
		resp.Summary.TotalCopies += r.Book.TotalCopies
		resp.Summary.AvailableCopies += r.Book.AvailableCopies
		resp.Summary.TotalHistoricalLoans += r.TotalLoans
		resp.Books = append(resp.Books, bookReportRow{
			ID:              r.Book.ID,
			Title:           r.Book.Title,
			Authors:         r.Book.Authors,
			ISBN:            r.Book.ISBN,
			TotalCopies:     r.Book.TotalCopies,
			AvailableCopies: r.Book.AvailableCopies,
			TotalLoans:      r.TotalLoans,
			ActiveLoans:     r.ActiveLoans,
			PopularityScore: float64(r.TotalLoans) / float64(copies),
		})
	}
	resp.Summary.TotalBooks = len(resp.Books)
	if resp.Summary.TotalCopies > 0 {
		out := resp.Summary.TotalCopies - resp.Summary.AvailableCopies
		resp.Summary.LoanRate = float64(out) / float64(resp.Summary.TotalCopies)
	}

	return c.JSON(http.StatusOK, resp)
}

// ----- users report -----

type userReportRow struct {
	ID             uint64     `json:"id"`
	Username       string     `json:"username"`
	FullName       string     `json:"full_name"`
	Role           string     `json:"role"`
	ClassName      *string    `json:"class_name,omitempty"`
	IsActive       bool       `json:"is_active"`
	TotalLoans     int        `json:"total_loans"`
	ActiveLoans    int        `json:"active_loans"`
	OverdueLoans   int        `json:"overdue_loans"`
	TotalFineCents int64      `json:"total_fine_cents"`
	LastLoanAt     *time.Time `json:"last_loan_at,omitempty"`
}

type usersReportResp struct {
	Summary struct {
		TotalUsers      int     `json:"total_users"`
		ActiveUsers     int     `json:"active_users"`
		TotalLoans      int     `json:"total_loans"`
		TotalFineCents  int64   `json:"total_fine_cents"`
		AvgLoansPerUser float64 `json:"avg_loans_per_user"`
	} `json:"summary"`
	Users       []userReportRow `json:"users"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// UsersReport handles GET /v1/reports/users (librarian+).  Optional query
// parameters: role and class narrow the accounts included.
func (h *ReportsHandler) UsersReport(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	now := time.Now().UTC()

	role := c.QueryParam("role")
	if role != "" && !model.ValidRole(role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role"})
	}

	rows, err := h.Users.Report(ctx, role, c.QueryParam("class"), now)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	var resp usersReportResp
	resp.GeneratedAt = now
	resp.Users = make([]userReportRow, 0, len(rows))
	for _, r := range rows {
		if r.User.IsActive {
			resp.Summary.ActiveUsers++
		}
		resp.Summary.TotalLoans += r.TotalLoans
		resp.Summary.TotalFineCents += r.FineCentsTotal
		resp.Users = append(resp.Users, userReportRow{
			ID:             r.User.ID,
			Username:       r.User.Username,
			FullName:       r.User.FullName,
			Role:           r.User.Role,
			ClassName:      r.User.ClassName,
			IsActive:       r.User.IsActive,
			TotalLoans:     r.TotalLoans,
			ActiveLoans:    r.ActiveLoans,
			OverdueLoans:   r.OverdueLoans,
			TotalFineCents: r.FineCentsTotal,
			LastLoanAt:     r.LastLoanAt,
		})
	}
	resp.Summary.TotalUsers = len(resp.Users)
	if resp.Summary.TotalUsers > 0 {
		resp.Summary.AvgLoansPerUser = float64(resp.Summary.TotalLoans) / float64(resp.Summary.TotalUsers)
	}

	return c.JSON(http.StatusOK, resp)
}
