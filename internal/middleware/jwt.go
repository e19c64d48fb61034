package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/pockets/internal/auth"
)

// OwnerLocal is the fiber.Ctx local holding the authenticated owner.
const OwnerLocal = "owner"

// OwnerAuth returns a middleware that validates bearer tokens and exposes the
// token subject as the ledger owner.
func OwnerAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		owner, err := auth.ParseOwnerToken(tokenStr, secret)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				return fiber.NewError(http.StatusUnauthorized, "token expired")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals(OwnerLocal, owner)
		return c.Next()
	}
}

// Owner returns the authenticated owner, or "" outside OwnerAuth.
func Owner(c *fiber.Ctx) string {
	owner, _ := c.Locals(OwnerLocal).(string)
	return owner
}
