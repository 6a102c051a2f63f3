// handlers/staking_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"unibridge-points/services"
)

type positionsRequest struct {
	Positions []services.PositionUpdate `json:"positions" validate:"required,min=1,dive"`
}

func SetupStakingRoutes(app *fiber.App, distributor *services.StakingDistributor) {
	// Push endpoint for the balance indexer.
	app.Post("/staking/positions", func(c *fiber.Ctx) error {
		var req positionsRequest
		if err := parseBody(c, &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
				"cause": err.Error(),
			})
		}
		n, err := distributor.UpsertPositions(c.UserContext(), req.Positions)
		if err != nil {
			return respondError(c, "failed to store positions", err)
		}
		return c.JSON(fiber.Map{"upserted": n})
	})

	app.Get("/staking/positions/:wallet", func(c *fiber.Ctx) error {
		positions, err := distributor.Positions(c.UserContext(), c.Params("wallet"))
		if err != nil {
			return respondError(c, "failed to list positions", err)
		}
		return c.JSON(fiber.Map{"positions": positions})
	})
}
