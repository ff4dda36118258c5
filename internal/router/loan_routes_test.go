package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-library/internal/handler"
	"school-library/internal/middleware"
	"school-library/internal/model"
	"school-library/internal/repository"
	"school-library/internal/service"
	"school-library/internal/utils"
)

const testSecret = "route-test-secret"

// memUsers backs the session middleware and the loan service in tests.
type memUsers map[uint64]model.User

func (m memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := m[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

type memBooks map[uint64]model.Book

func (m memBooks) GetByID(_ context.Context, id uint64) (model.Book, error) {
	b, ok := m[id]
	if !ok {
		return model.Book{}, sql.ErrNoRows
	}
	return b, nil
}

// memLoans is a read-only loan store; the routing tests never mutate.
type memLoans struct{ loans []model.Loan }

func (m *memLoans) Create(context.Context, uint64, uint64, time.Time, time.Time) (model.Loan, error) {
	return model.Loan{}, sql.ErrNoRows
}

func (m *memLoans) Return(context.Context, uint64, time.Time, int64) (model.Loan, error) {
	return model.Loan{}, sql.ErrNoRows
}

func (m *memLoans) GetByID(_ context.Context, id uint64) (model.Loan, error) {
	for _, l := range m.loans {
		if l.ID == id {
			return l, nil
		}
	}
	return model.Loan{}, sql.ErrNoRows
}

func (m *memLoans) List(_ context.Context, f repository.LoanFilter) ([]model.Loan, error) {
	out := make([]model.Loan, 0)
	for _, l := range m.loans {
		if f.UserID != nil && l.UserID != *f.UserID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func newLoansServer(t *testing.T) *echo.Echo {
	t.Helper()

	users := memUsers{
		1: {ID: 1, Username: "teach", Role: model.RoleTeacher, IsActive: true},
		2: {ID: 2, Username: "stud", Role: model.RoleStudent, IsActive: true},
		3: {ID: 3, Username: "desk", Role: model.RoleLibrarian, IsActive: true},
	}
	books := memBooks{
		10: {ID: 10, Title: "Go in Practice", Authors: []string{"A"}, TotalCopies: 2, AvailableCopies: 1},
	}
	now := time.Now().UTC()
	loans := &memLoans{loans: []model.Loan{
		{ID: 100, BookID: 10, UserID: 1, BorrowedAt: now, DueAt: now.AddDate(0, 0, 14)},
		{ID: 101, BookID: 10, UserID: 2, BorrowedAt: now, DueAt: now.AddDate(0, 0, 14)},
	}}

	svc := service.NewLoanService(books, users, loans, nil, 14, 50)
	l := handler.NewLoansHandler(svc, books, users)
	r := handler.NewReportsHandler(nil, nil, nil, 50)

	e := echo.New()
	RegisterLoans(e, l, r, middleware.Session(testSecret, users))
	return e
}

func doAs(t *testing.T, e *echo.Echo, u model.User, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	at, err := utils.NewAccessToken(testSecret, u.ID, u.Username, u.Role, 5)
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+at.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// A student may list loans; the service clamps the result to their own.
func TestListLoansOpenToStudents(t *testing.T) {
	e := newLoansServer(t)
	student := model.User{ID: 2, Username: "stud", Role: model.RoleStudent}

	rec := doAs(t, e, student, http.MethodGet, "/v1/loans")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []struct {
		ID     uint64 `json:"id"`
		UserID uint64 `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, uint64(101), got[0].ID)
	assert.Equal(t, uint64(2), got[0].UserID)
}

func TestListLoansTeacherSeesAll(t *testing.T) {
	e := newLoansServer(t)
	teacher := model.User{ID: 1, Username: "teach", Role: model.RoleTeacher}

	rec := doAs(t, e, teacher, http.MethodGet, "/v1/loans")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestLoanWritesRequireLibrarian(t *testing.T) {
	e := newLoansServer(t)
	for _, u := range []model.User{
		{ID: 2, Username: "stud", Role: model.RoleStudent},
		{ID: 1, Username: "teach", Role: model.RoleTeacher},
	} {
		rec := doAs(t, e, u, http.MethodPost, "/v1/loans")
		assert.Equal(t, http.StatusForbidden, rec.Code, u.Role)

		rec = doAs(t, e, u, http.MethodPost, "/v1/loans/101/return")
		assert.Equal(t, http.StatusForbidden, rec.Code, u.Role)
	}
}

// Reports are desk tooling: teachers are not enough.
func TestReportsRequireLibrarian(t *testing.T) {
	e := newLoansServer(t)
	teacher := model.User{ID: 1, Username: "teach", Role: model.RoleTeacher}

	for _, target := range []string{
		"/v1/reports/dashboard",
		"/v1/reports/loans",
		"/v1/reports/books",
		"/v1/reports/users",
	} {
		rec := doAs(t, e, teacher, http.MethodGet, target)
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}
}

func TestLoansRejectAnonymous(t *testing.T) {
	e := newLoansServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/loans", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
