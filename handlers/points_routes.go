// handlers/points_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"unibridge-points/services"
)

type connectRequest struct {
	Wallet       string `json:"wallet" validate:"required"`
	ReferrerCode string `json:"referrer_code"`
}

func SetupPointsRoutes(app *fiber.App, pointsService *services.PointsService, leaderboard *services.LeaderboardService) {
	app.Post("/connect", func(c *fiber.Ctx) error {
		var req connectRequest
		if err := parseBody(c, &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
				"cause": err.Error(),
			})
		}
		result, err := pointsService.Connect(c.UserContext(), req.Wallet, req.ReferrerCode)
		if err != nil {
			return respondError(c, "failed to record connect", err)
		}
		return c.JSON(result)
	})

	app.Get("/points/:wallet", func(c *fiber.Ctx) error {
		summary, err := leaderboard.Summary(c.UserContext(), c.Params("wallet"))
		if err != nil {
			return respondError(c, "failed to load wallet summary", err)
		}
		return c.JSON(summary)
	})

	app.Get("/points/:wallet/history", func(c *fiber.Ctx) error {
		entries, err := pointsService.History(c.UserContext(), c.Params("wallet"), c.QueryInt("limit", services.DefaultHistoryLimit))
		if err != nil {
			return respondError(c, "failed to load ledger history", err)
		}
		return c.JSON(fiber.Map{"entries": entries})
	})

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		page, err := leaderboard.Rank(c.UserContext(), c.QueryInt("limit", services.DefaultLeaderboardLimit), c.QueryInt("offset", 0))
		if err != nil {
			return respondError(c, "failed to load leaderboard", err)
		}
		return c.JSON(page)
	})

	app.Get("/leaderboard/rank/:wallet", func(c *fiber.Ctx) error {
		summary, err := leaderboard.Summary(c.UserContext(), c.Params("wallet"))
		if err != nil {
			return respondError(c, "failed to rank wallet", err)
		}
		return c.JSON(fiber.Map{
			"wallet":         summary.Wallet,
			"rank":           summary.Rank,
			"weighted_score": summary.WeightedScore,
		})
	})
}
