package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-library/internal/model"
	"school-library/internal/repository"
)

type stubReportBooks struct {
	rows []repository.BookReportRow
}

func (s *stubReportBooks) Stats(context.Context) (int, int, int, error) {
	titles, copies, available := 0, 0, 0
	for _, r := range s.rows {
		titles++
		copies += r.Book.TotalCopies
		available += r.Book.AvailableCopies
	}
	return titles, copies, available, nil
}

func (s *stubReportBooks) Report(_ context.Context, availability string) ([]repository.BookReportRow, error) {
	out := make([]repository.BookReportRow, 0)
	for _, r := range s.rows {
		switch availability {
		case "available":
			if r.Book.AvailableCopies == 0 {
				continue
			}
		case "unavailable":
			if r.Book.AvailableCopies > 0 {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

type stubReportUsers struct {
	rows []repository.UserReportRow
}

func (s *stubReportUsers) CountByRole(context.Context) (map[string]int, error) {
	out := map[string]int{}
	for _, r := range s.rows {
		out[r.User.Role]++
	}
	return out, nil
}

func (s *stubReportUsers) Report(_ context.Context, role, className string, _ time.Time) ([]repository.UserReportRow, error) {
	out := make([]repository.UserReportRow, 0)
	for _, r := range s.rows {
		if role != "" && r.User.Role != role {
			continue
		}
		if className != "" && (r.User.ClassName == nil || *r.User.ClassName != className) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type stubReportLoans struct {
	rows []repository.LoanReportRow
}

func (s *stubReportLoans) Counts(_ context.Context, now time.Time) (int, int, error) {
	active, overdue := 0, 0
	for _, r := range s.rows {
		if r.Loan.ReturnedAt != nil {
			continue
		}
		active++
		if now.After(r.Loan.DueAt) {
			overdue++
		}
	}
	return active, overdue, nil
}

func (s *stubReportLoans) OverdueDues(_ context.Context, now time.Time) ([]time.Time, error) {
	var dues []time.Time
	for _, r := range s.rows {
		if r.Loan.ReturnedAt == nil && now.After(r.Loan.DueAt) {
			dues = append(dues, r.Loan.DueAt)
		}
	}
	return dues, nil
}

func (s *stubReportLoans) Report(_ context.Context, f repository.LoanReportFilter) ([]repository.LoanReportRow, error) {
	out := make([]repository.LoanReportRow, 0)
	for _, r := range s.rows {
		if f.From != nil && r.Loan.BorrowedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && r.Loan.BorrowedAt.After(*f.To) {
			continue
		}
		if f.Status != "" && r.Loan.Status(f.Now) != f.Status {
			continue
		}
		if f.UserRole != "" && r.UserRole != f.UserRole {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stubReportLoans) PopularBooks(_ context.Context, since time.Time, limit int) ([]repository.PopularBook, error) {
	counts := map[uint64]*repository.PopularBook{}
	for _, r := range s.rows {
		if r.Loan.BorrowedAt.Before(since) {
			continue
		}
		p, ok := counts[r.Loan.BookID]
		if !ok {
			p = &repository.PopularBook{BookID: r.Loan.BookID, Title: r.BookTitle, Authors: r.BookAuthors}
			counts[r.Loan.BookID] = p
		}
		p.LoanCount++
	}
	out := make([]repository.PopularBook, 0, len(counts))
	for _, p := range counts {
		out = append(out, *p)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubReportLoans) RecentActivity(_ context.Context, limit int) ([]repository.LoanActivity, error) {
	out := make([]repository.LoanActivity, 0, limit)
	for _, r := range s.rows {
		if len(out) == limit {
			break
		}
		out = append(out, repository.LoanActivity{
			LoanID:     r.Loan.ID,
			BookTitle:  r.BookTitle,
			UserName:   r.UserName,
			BorrowedAt: r.Loan.BorrowedAt,
			DueAt:      r.Loan.DueAt,
			ReturnedAt: r.Loan.ReturnedAt,
		})
	}
	return out, nil
}

func (s *stubReportLoans) MonthlyStats(_ context.Context, since time.Time) ([]repository.MonthlyLoanStats, error) {
	months := map[string]*repository.MonthlyLoanStats{}
	for _, r := range s.rows {
		if r.Loan.BorrowedAt.Before(since) {
			continue
		}
		key := r.Loan.BorrowedAt.Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &repository.MonthlyLoanStats{Month: key}
			months[key] = m
		}
		m.TotalLoans++
		if r.Loan.ReturnedAt != nil {
			m.ReturnedLoans++
		}
	}
	out := make([]repository.MonthlyLoanStats, 0, len(months))
	for _, m := range months {
		out = append(out, *m)
	}
	return out, nil
}

// newReportsFixture seeds three loans against the current clock: one
// returned late, one outstanding and 49 hours overdue (three chargeable
// days) and one still on time.
func newReportsFixture() *ReportsHandler {
	now := time.Now().UTC()
	class := "7b"
	returnedAt := now.Add(-30 * 24 * time.Hour).AddDate(0, 0, 19) // 5 days late

	loans := &stubReportLoans{rows: []repository.LoanReportRow{
		{
			Loan: model.Loan{ID: 1, BookID: 10, UserID: 2,
				BorrowedAt: now.Add(-30 * 24 * time.Hour),
				DueAt:      now.Add(-30 * 24 * time.Hour).AddDate(0, 0, 14),
				ReturnedAt: &returnedAt, FineCents: 250},
			BookTitle: "Go in Practice", BookAuthors: []string{"A"},
			UserName: "Sam Student", UserRole: model.RoleStudent, UserClass: &class,
		},
		{
			Loan: model.Loan{ID: 2, BookID: 10, UserID: 2,
				BorrowedAt: now.AddDate(0, 0, -16),
				DueAt:      now.Add(-49 * time.Hour)},
			BookTitle: "Go in Practice", BookAuthors: []string{"A"},
			UserName: "Sam Student", UserRole: model.RoleStudent, UserClass: &class,
		},
		{
			Loan: model.Loan{ID: 3, BookID: 11, UserID: 1,
				BorrowedAt: now.AddDate(0, 0, -1),
				DueAt:      now.AddDate(0, 0, 13)},
			BookTitle: "The Go Programming Language", BookAuthors: []string{"B"},
			UserName: "Tina Teacher", UserRole: model.RoleTeacher,
		},
	}}
	books := &stubReportBooks{rows: []repository.BookReportRow{
		{Book: model.Book{ID: 10, Title: "Go in Practice", TotalCopies: 2, AvailableCopies: 1},
			TotalLoans: 2, ActiveLoans: 1},
		{Book: model.Book{ID: 11, Title: "The Go Programming Language", TotalCopies: 1, AvailableCopies: 0},
			TotalLoans: 1, ActiveLoans: 1},
	}}
	users := &stubReportUsers{rows: []repository.UserReportRow{
		{User: model.User{ID: 1, Username: "teach", Role: model.RoleTeacher, IsActive: true},
			TotalLoans: 1, ActiveLoans: 1},
		{User: model.User{ID: 2, Username: "stud", Role: model.RoleStudent, ClassName: &class, IsActive: true},
			TotalLoans: 2, ActiveLoans: 1, OverdueLoans: 1, FineCentsTotal: 250},
		{User: model.User{ID: 3, Username: "parked", Role: model.RoleStudent, IsActive: false}},
	}}

	return NewReportsHandler(books, users, loans, 50)
}

func getReport(t *testing.T, target string, fn echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, fn(e.NewContext(req, rec)))
	return rec
}

func TestLoansReportSummary(t *testing.T) {
	h := newReportsFixture()
	rec := getReport(t, "/v1/reports/loans", h.LoansReport)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Summary struct {
			TotalLoans      int            `json:"total_loans"`
			TotalFinesCents int64          `json:"total_fines_cents"`
			StatusBreakdown map[string]int `json:"status_breakdown"`
		} `json:"summary"`
		Loans []struct {
			ID          uint64 `json:"id"`
			Status      string `json:"status"`
			FineCents   int64  `json:"fine_cents"`
			DaysOverdue int64  `json:"days_overdue"`
		} `json:"loans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 3, resp.Summary.TotalLoans)
	// 250 stored on the returned loan + 3 days accrued on the overdue one.
	assert.Equal(t, int64(400), resp.Summary.TotalFinesCents)
	assert.Equal(t, map[string]int{
		model.LoanStatusReturned: 1,
		model.LoanStatusOverdue:  1,
		model.LoanStatusBorrowed: 1,
	}, resp.Summary.StatusBreakdown)

	for _, l := range resp.Loans {
		switch l.ID {
		case 1:
			assert.Equal(t, model.LoanStatusReturned, l.Status)
			assert.Equal(t, int64(250), l.FineCents)
			assert.Zero(t, l.DaysOverdue)
		case 2:
			assert.Equal(t, model.LoanStatusOverdue, l.Status)
			assert.Equal(t, int64(150), l.FineCents)
			assert.Equal(t, int64(3), l.DaysOverdue)
		case 3:
			assert.Equal(t, model.LoanStatusBorrowed, l.Status)
			assert.Zero(t, l.FineCents)
		}
	}
}

func TestLoansReportFilters(t *testing.T) {
	h := newReportsFixture()

	rec := getReport(t, "/v1/reports/loans?status=overdue", h.LoansReport)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Loans []struct {
			ID uint64 `json:"id"`
		} `json:"loans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Loans, 1)
	assert.Equal(t, uint64(2), resp.Loans[0].ID)

	rec = getReport(t, "/v1/reports/loans?user_role=teacher", h.LoansReport)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Loans, 1)
	assert.Equal(t, uint64(3), resp.Loans[0].ID)
}

func TestLoansReportRejectsBadParams(t *testing.T) {
	h := newReportsFixture()
	for _, target := range []string{
		"/v1/reports/loans?status=lost",
		"/v1/reports/loans?user_role=wizard",
		"/v1/reports/loans?start_date=not-a-date",
		"/v1/reports/loans?end_date=31-12-2025",
	} {
		rec := getReport(t, target, h.LoansReport)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestBooksReport(t *testing.T) {
	h := newReportsFixture()
	rec := getReport(t, "/v1/reports/books", h.BooksReport)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Summary struct {
			TotalBooks           int     `json:"total_books"`
			TotalCopies          int     `json:"total_copies"`
			AvailableCopies      int     `json:"available_copies"`
			LoanRate             float64 `json:"loan_rate"`
			TotalHistoricalLoans int     `json:"total_historical_loans"`
		} `json:"summary"`
		Books []struct {
			ID              uint64  `json:"id"`
			PopularityScore float64 `json:"popularity_score"`
		} `json:"books"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.Summary.TotalBooks)
	assert.Equal(t, 3, resp.Summary.TotalCopies)
	assert.Equal(t, 1, resp.Summary.AvailableCopies)
	assert.InDelta(t, 2.0/3.0, resp.Summary.LoanRate, 1e-9)
	assert.Equal(t, 3, resp.Summary.TotalHistoricalLoans)

	require.Len(t, resp.Books, 2)
	for _, b := range resp.Books {
		assert.InDelta(t, 1.0, b.PopularityScore, 1e-9, b.ID)
	}
}

func TestBooksReportAvailabilityFilter(t *testing.T) {
	h := newReportsFixture()

	rec := getReport(t, "/v1/reports/books?availability=unavailable", h.BooksReport)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Books []struct {
			ID uint64 `json:"id"`
		} `json:"books"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Books, 1)
	assert.Equal(t, uint64(11), resp.Books[0].ID)

	rec = getReport(t, "/v1/reports/books?availability=sometimes", h.BooksReport)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsersReport(t *testing.T) {
	h := newReportsFixture()
	rec := getReport(t, "/v1/reports/users", h.UsersReport)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Summary struct {
			TotalUsers      int     `json:"total_users"`
			ActiveUsers     int     `json:"active_users"`
			TotalLoans      int     `json:"total_loans"`
			TotalFineCents  int64   `json:"total_fine_cents"`
			AvgLoansPerUser float64 `json:"avg_loans_per_user"`
		} `json:"summary"`
		Users []struct {
			Username string `json:"username"`
		} `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 3, resp.Summary.TotalUsers)
	assert.Equal(t, 2, resp.Summary.ActiveUsers)
	assert.Equal(t, 3, resp.Summary.TotalLoans)
	assert.Equal(t, int64(250), resp.Summary.TotalFineCents)
	assert.InDelta(t, 1.0, resp.Summary.AvgLoansPerUser, 1e-9)
}

func TestUsersReportFilters(t *testing.T) {
	h := newReportsFixture()

	rec := getReport(t, "/v1/reports/users?role=student&class=7b", h.UsersReport)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Users []struct {
			Username string `json:"username"`
		} `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "stud", resp.Users[0].Username)

	rec = getReport(t, "/v1/reports/users?role=wizard", h.UsersReport)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard(t *testing.T) {
	h := newReportsFixture()
	rec := getReport(t, "/v1/reports/dashboard", h.Dashboard)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Loans struct {
			Active                int   `json:"active"`
			Overdue               int   `json:"overdue"`
			OutstandingFinesCents int64 `json:"outstanding_fines_cents"`
		} `json:"loans"`
		UsersByRole  map[string]int `json:"users_by_role"`
		PopularBooks []struct {
			BookID    uint64 `json:"book_id"`
			LoanCount int    `json:"loan_count"`
		} `json:"popular_books"`
		RecentActivity []struct {
			LoanID uint64 `json:"loan_id"`
			Status string `json:"status"`
		} `json:"recent_activity"`
		MonthlyStats []struct {
			Month       string `json:"month"`
			TotalLoans  int    `json:"total_loans"`
			ActiveLoans int    `json:"active_loans"`
		} `json:"monthly_stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.Loans.Active)
	assert.Equal(t, 1, resp.Loans.Overdue)
	assert.Equal(t, int64(150), resp.Loans.OutstandingFinesCents) // 3 days at 50
	assert.Equal(t, map[string]int{model.RoleTeacher: 1, model.RoleStudent: 2}, resp.UsersByRole)
	assert.NotEmpty(t, resp.PopularBooks)
	assert.NotEmpty(t, resp.RecentActivity)
	assert.NotEmpty(t, resp.MonthlyStats)
}
