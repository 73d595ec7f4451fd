package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-teamchat/internal/auth"
	"github.com/noah-isme/gema-teamchat/internal/utils"
)

const identityLocal = "identity"

// JWTProtected returns a middleware that resolves bearer tokens into an identity.
func JWTProtected(resolver auth.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		token := auth.BearerToken(authorization)
		if token == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		identity, err := resolver.Resolve(c.UserContext(), token)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(identityLocal, identity)
		c.Locals("user_id", identity.UserID)
		c.SetUserContext(auth.WithIdentity(c.UserContext(), identity))

		return c.Next()
	}
}

// CurrentIdentity returns the identity stored by JWTProtected.
func CurrentIdentity(c *fiber.Ctx) (auth.Identity, bool) {
	identity, ok := c.Locals(identityLocal).(auth.Identity)
	return identity, ok && identity.UserID != ""
}
