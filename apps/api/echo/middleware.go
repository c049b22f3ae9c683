package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core/user"
)

// adminMiddleware lets admins holding any of roles through; any admin when roles is empty.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// editorMiddleware restricts content management to admin owners and editors.
func editorMiddleware() echo.MiddlewareFunc {
	return adminMiddleware(user.RoleAdminOwner, user.RoleAdminEditor)
}
