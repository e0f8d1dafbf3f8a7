package middleware

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phonebook/contacts-api/internal/core/domain"
)

// ValidID rejects requests whose path parameter is not a well-formed
// ObjectID before the handler reads the body or touches the blob sink.
func ValidID(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !primitive.IsValidObjectID(c.Param(param)) {
				return domain.ErrInvalidID
			}
			return next(c)
		}
	}
}
