// middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"unibridge-points/logging"
)

const AdminRole = "admin"

// UserContextMiddleware extracts the caller identity and roles set by the
// Gateway. Secured paths (/s/...) require X-User-ID.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		rolesStr := c.Get("X-User-Roles")

		path := c.Path()
		if strings.HasPrefix(path, "/s/") && userID == "" {
			logging.Logger.Warn("[USER_CTX] X-User-ID missing on secured route", zap.String("path", path))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through the gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)
		return c.Next()
	}
}

// RequireAdmin admits callers holding the admin role or listed in
// adminWallets. It must run after UserContextMiddleware; rejected requests
// never reach a handler.
func RequireAdmin(adminWallets []string) fiber.Handler {
	allowed := make(map[string]bool, len(adminWallets))
	for _, w := range adminWallets {
		allowed[strings.ToLower(strings.TrimSpace(w))] = true
	}

	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "admin identity required",
			})
		}
		roles, _ := c.Locals("user_roles").([]string)
		for _, r := range roles {
			if strings.EqualFold(r, AdminRole) {
				return c.Next()
			}
		}
		if allowed[strings.ToLower(userID)] {
			return c.Next()
		}

		logging.Logger.Warn("[ADMIN] non-admin caller rejected",
			zap.String("user_id", userID), zap.String("path", c.Path()))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "admin role required",
		})
	}
}

// CallerID returns the verified caller set by UserContextMiddleware.
func CallerID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
