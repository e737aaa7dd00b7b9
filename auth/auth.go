// auth/auth.go
package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ViniZap4/lumi-notes/domain"
)

// LocalsKey is the fiber.Ctx locals key holding the resolved identity.
const LocalsKey = "identity"

// Middleware is the single gate in front of every note route. It resolves
// the Authorization header and attaches the identity to the request
// context. Failures are returned to the app's error handler.
func Middleware(resolver *Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := resolver.Resolve(c.UserContext(), c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return err
		}

		c.Locals(LocalsKey, identity)
		c.SetUserContext(WithIdentity(c.UserContext(), identity))
		return c.Next()
	}
}

// Principal returns the identity attached by Middleware.
func Principal(c *fiber.Ctx) (*domain.Identity, bool) {
	if identity, ok := IdentityFrom(c.UserContext()); ok {
		return identity, true
	}
	identity, ok := c.Locals(LocalsKey).(*domain.Identity)
	return identity, ok && identity != nil
}
