// handlers/unibridge_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"unibridge-points/services"
)

type resolveRequest struct {
	Status   string  `json:"status" validate:"required,oneof=success failed"`
	USDValue *string `json:"usd_value"`
}

func SetupUnibridgeRoutes(app *fiber.App, unibridgeService *services.UnibridgeService) {
	app.Post("/unibridge/actions", func(c *fiber.Ctx) error {
		var req services.CreateActionRequest
		if err := parseBody(c, &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
				"cause": err.Error(),
			})
		}
		action, created, err := unibridgeService.CreateAction(c.UserContext(), req)
		if err != nil {
			return respondError(c, "failed to register action", err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"action": action, "created": created})
	})

	// Status webhook from the transaction status oracle.
	app.Post("/unibridge/actions/:txId/status", func(c *fiber.Ctx) error {
		var req resolveRequest
		if err := parseBody(c, &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
				"cause": err.Error(),
			})
		}
		result, err := unibridgeService.ResolveStatus(c.UserContext(), services.ResolveRequest{
			TxID:     c.Params("txId"),
			Status:   req.Status,
			USDValue: req.USDValue,
		})
		if err != nil {
			return respondError(c, "failed to resolve action", err)
		}
		return c.JSON(result)
	})

	app.Get("/unibridge/wallets/:wallet/actions", func(c *fiber.Ctx) error {
		actions, err := unibridgeService.ListActions(c.UserContext(), c.Params("wallet"), c.QueryInt("limit", services.DefaultActionListLimit))
		if err != nil {
			return respondError(c, "failed to list actions", err)
		}
		return c.JSON(fiber.Map{"actions": actions})
	})
}
