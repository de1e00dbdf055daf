package middleware

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// subject returns the caller id from "sub" or "user_id".  Numeric ids are
// decoded as float64 by the JSON parser and are formatted back as integers.
func subject(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "user_id"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v > 0 {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return ""
}

// UserID returns the authenticated caller, or "" when JWTAuth did not run.
func UserID(c echo.Context) string {
	if s, ok := c.Get(ContextUserID).(string); ok {
		return s
	}
	return ""
}

// Token returns the raw bearer token of the caller.
func Token(c echo.Context) string {
	if s, ok := c.Get(ContextToken).(string); ok {
		return s
	}
	return ""
}
