package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-library/internal/model"
	"school-library/internal/utils"
)

const testSecret = "unit-test-secret"

type stubUsers map[uint64]model.User

func (s stubUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := s[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

// callSession runs a request through the Session middleware into a handler
// that echoes back the resolved principal's username.
func callSession(t *testing.T, users stubUsers, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Session(testSecret, users)(func(c echo.Context) error {
		u, ok := Principal(c)
		require.True(t, ok)
		return c.String(http.StatusOK, u.Username)
	})
	require.NoError(t, h(c))
	return rec
}

func bearer(t *testing.T, userID uint64, username, role string, ttlMin int) string {
	t.Helper()
	at, err := utils.NewAccessToken(testSecret, userID, username, role, ttlMin)
	require.NoError(t, err)
	return "Bearer " + at.Token
}

func TestSessionValidToken(t *testing.T) {
	users := stubUsers{7: {ID: 7, Username: "msmith", Role: model.RoleLibrarian, IsActive: true}}
	rec := callSession(t, users, bearer(t, 7, "msmith", model.RoleLibrarian, 15))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "msmith", rec.Body.String())
}

func TestSessionMissingToken(t *testing.T) {
	rec := callSession(t, stubUsers{}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionExpiredToken(t *testing.T) {
	users := stubUsers{7: {ID: 7, Username: "msmith", Role: model.RoleLibrarian, IsActive: true}}
	rec := callSession(t, users, bearer(t, 7, "msmith", model.RoleLibrarian, -1))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionWrongSecret(t *testing.T) {
	at, err := utils.NewAccessToken("some-other-secret", 7, "msmith", model.RoleLibrarian, 15)
	require.NoError(t, err)
	rec := callSession(t, stubUsers{}, "Bearer "+at.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionUnknownPrincipal(t *testing.T) {
	// subject does not exist anymore: the token is time-valid but useless
	rec := callSession(t, stubUsers{}, bearer(t, 99, "ghost", model.RoleStudent, 15))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown principal")
}

func TestSessionDisabledAccount(t *testing.T) {
	users := stubUsers{7: {ID: 7, Username: "msmith", Role: model.RoleStudent, IsActive: false}}
	rec := callSession(t, users, bearer(t, 7, "msmith", model.RoleStudent, 15))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "account disabled")
}

// The role claim inside the token is decorative: the store decides.  A
// token minted when the user was an admin stops opening admin doors the
// moment the store says they are a student.
func TestSessionRoleComesFromStore(t *testing.T) {
	users := stubUsers{7: {ID: 7, Username: "msmith", Role: model.RoleStudent, IsActive: true}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set("Authorization", bearer(t, 7, "msmith", model.RoleAdmin, 15))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Session(testSecret, users)(RequireRole(model.RoleAdmin)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}))
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
