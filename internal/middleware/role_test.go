package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-library/internal/model"
)

func callRequireRole(t *testing.T, minRole string, principal *model.User) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/loans", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if principal != nil {
		c.Set(principalKey, *principal)
	}
	h := RequireRole(minRole)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec
}

func TestRequireRole(t *testing.T) {
	teacher := model.User{ID: 1, Role: model.RoleTeacher, IsActive: true}
	student := model.User{ID: 2, Role: model.RoleStudent, IsActive: true}
	admin := model.User{ID: 3, Role: model.RoleAdmin, IsActive: true}

	assert.Equal(t, http.StatusOK, callRequireRole(t, model.RoleTeacher, &teacher).Code)
	assert.Equal(t, http.StatusOK, callRequireRole(t, model.RoleTeacher, &admin).Code)
	assert.Equal(t, http.StatusForbidden, callRequireRole(t, model.RoleTeacher, &student).Code)
	assert.Equal(t, http.StatusForbidden, callRequireRole(t, model.RoleAdmin, &teacher).Code)
}

func TestRequireRoleNoPrincipal(t *testing.T) {
	// reaching the guard without a session is a wiring bug; fail closed
	rec := callRequireRole(t, model.RoleStudent, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRoleUnknownRole(t *testing.T) {
	odd := model.User{ID: 4, Role: "janitor", IsActive: true}
	rec := callRequireRole(t, model.RoleStudent, &odd)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
