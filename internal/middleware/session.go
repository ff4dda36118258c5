package middleware // middleware contains reusable HTTP middleware functions

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
	"github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers

	"school-library/internal/model"
)

// principalKey is the context key under which the authenticated principal
// is stored for handlers.
const principalKey = "principal"

// PrincipalSource resolves the subject of a validated token to the current
// user record.  The user repository satisfies it.
type PrincipalSource interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Session returns an Echo middleware that validates a Bearer access token
// and loads the current principal into the request context.  The token is
// only trusted for its subject: the principal's role and active flag are
// re-fetched from the store on every request, so a role change or
// deactivation takes effect on the next call even while the token is still
// time-valid.  Absent, malformed, expired and unknown-subject tokens all
// yield 401 with no side effects.
func Session(secret string, users PrincipalSource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Parse with HS256 enforced; tokens signed with any other
			// algorithm are rejected outright.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			uid := subjectID(claims)
			if uid == 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()
			u, err := users.GetByID(ctx, uid)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown principal"})
				}
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load principal failed"})
			}
			if !u.IsActive {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account disabled"})
			}

			c.Set(principalKey, u)
			// String forms for middleware further down the chain (rate
			// limiter key building).
			c.Set("user_id", strconv.FormatUint(u.ID, 10))
			c.Set("role", u.Role)
			return next(c)
		}
	}
}

// Principal returns the authenticated user stored by Session.
func Principal(c echo.Context) (model.User, bool) {
	u, ok := c.Get(principalKey).(model.User)
	return u, ok
}

// subjectID extracts the numeric subject claim.  JWT numbers decode as
// float64; some issuers encode numeric strings instead.
func subjectID(claims jwt.MapClaims) uint64 {
	switch v := claims["sub"].(type) {
	case float64:
		if v > 0 {
			return uint64(v)
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
