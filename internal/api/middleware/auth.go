package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pyre-fw/pyre/internal/authtoken"
	"github.com/pyre-fw/pyre/internal/pyreerr"
)

var errMissingAuth = &pyreerr.Error{Code: "MISSING_AUTH_HEADER", Message: "missing authorization header"}
var errBadAuthFormat = &pyreerr.Error{Code: "INVALID_AUTH_FORMAT", Message: "expected 'Bearer <token>'"}
var errBadToken = &pyreerr.Error{Code: "INVALID_TOKEN", Message: "invalid or expired token"}

// BearerAuth validates the Authorization header against issuer. The
// compile service gates a single capability behind one shared secret,
// so there is no per-user role or session state to check beyond the
// token's validity and scope.
func BearerAuth(issuer *authtoken.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return errMissingAuth
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			return errBadAuthFormat
		}

		claims, err := issuer.Validate(token)
		if err != nil || claims.Scope != authtoken.ScopeCompile {
			return errBadToken
		}

		c.Locals("scope", claims.Scope)
		return c.Next()
	}
}
