// handlers/referral_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"unibridge-points/services"
)

type registerReferralRequest struct {
	Referrer string `json:"referrer" validate:"required"`
	Referred string `json:"referred" validate:"required"`
}

func SetupReferralRoutes(app *fiber.App, referralService *services.ReferralService, configProvider *services.ConfigProvider) {
	app.Post("/referrals", func(c *fiber.Ctx) error {
		var req registerReferralRequest
		if err := parseBody(c, &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
				"cause": err.Error(),
			})
		}
		cfg, err := configProvider.Current(c.UserContext())
		if err != nil {
			return respondError(c, "failed to load scoring config", err)
		}
		outcome, err := referralService.Register(c.UserContext(), req.Referrer, req.Referred, cfg)
		if err != nil {
			return respondError(c, "failed to register referral", err)
		}
		return c.JSON(outcome)
	})

	app.Get("/referrals/:wallet", func(c *fiber.Ctx) error {
		stats, err := referralService.Stats(c.UserContext(), c.Params("wallet"))
		if err != nil {
			return respondError(c, "failed to load referral stats", err)
		}
		return c.JSON(stats)
	})
}
