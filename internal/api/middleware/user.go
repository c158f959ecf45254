package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// HeaderUserID carries the caller identity resolved by the upstream auth layer.
const HeaderUserID = "X-User-ID"

const userIDKey = "userID"

// RequireUser rejects requests without a positive numeric X-User-ID and
// stores the id on the context.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(HeaderUserID)
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing or invalid " + HeaderUserID + " header"})
			}
			c.Set(userIDKey, id)
			return next(c)
		}
	}
}

// UserID returns the caller id stored by RequireUser, or 0.
func UserID(c echo.Context) int64 {
	id, _ := c.Get(userIDKey).(int64)
	return id
}
