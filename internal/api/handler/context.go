package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ctxUserID returns the authenticated user id the Auth middleware stored on
// the context. Its absence means the route was mounted without Auth, which
// is answered with 401 rather than running an unscoped query.
func ctxUserID(c echo.Context) (string, error) {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return userID, nil
}
