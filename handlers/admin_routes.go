// handlers/admin_routes.go
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"unibridge-points/middleware"
	"unibridge-points/models"
	"unibridge-points/services"
)

// AdminDeps are the services behind /s/admin. Verify may be nil when no
// status oracle is configured.
type AdminDeps struct {
	AdminWallets []string
	Points       *services.PointsService
	Config       *services.ConfigProvider
	Export       *services.ExportService
	Admin        *services.AdminService
	Distributor  *services.StakingDistributor
	Verify       func(ctx context.Context) (any, error)
}

type adjustmentRequest struct {
	Wallet string `json:"wallet" validate:"required"`
	Amount int64  `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,max=255"`
}

func SetupAdminRoutes(app *fiber.App, deps AdminDeps) {
	// Identity and role checks run before any handler reads or writes.
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin(deps.AdminWallets))

	admin.Post("/adjustments", func(c *fiber.Ctx) error {
		var req adjustmentRequest
		if err := parseBody(c, &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
				"cause": err.Error(),
			})
		}
		res, err := deps.Points.ManualAdjustment(c.UserContext(), req.Wallet, req.Amount, req.Reason, middleware.CallerID(c))
		if err != nil {
			return respondError(c, "failed to apply adjustment", err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	admin.Get("/config", func(c *fiber.Ctx) error {
		cfg, err := deps.Config.Current(c.UserContext())
		if err != nil {
			return respondError(c, "failed to load scoring config", err)
		}
		return c.JSON(cfg)
	})

	admin.Put("/config", func(c *fiber.Ctx) error {
		var cfg models.ScoringConfig
		if err := c.BodyParser(&cfg); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
				"cause": err.Error(),
			})
		}
		saved, err := deps.Config.Update(c.UserContext(), cfg, middleware.CallerID(c))
		if err != nil {
			return respondError(c, "failed to update scoring config", err)
		}
		return c.JSON(saved)
	})

	admin.Get("/config/history", func(c *fiber.Ctx) error {
		rows, err := deps.Config.History(c.UserContext(), c.QueryInt("limit", 20))
		if err != nil {
			return respondError(c, "failed to load config history", err)
		}
		return c.JSON(fiber.Map{"versions": rows})
	})

	admin.Get("/export", func(c *fiber.Ctx) error {
		archive := c.QueryBool("archive", false)
		result, err := deps.Export.Export(c.UserContext(), archive)
		if err != nil {
			return respondError(c, "failed to export points", err)
		}
		if archive {
			return c.JSON(result)
		}
		c.Set(fiber.HeaderContentType, "text/csv")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+result.Filename+`"`)
		return c.Send(result.CSV)
	})

	admin.Get("/users", func(c *fiber.Ctx) error {
		users, err := deps.Admin.ListUsers(c.UserContext(), c.QueryInt("limit", services.DefaultUserListLimit))
		if err != nil {
			return respondError(c, "failed to list users", err)
		}
		return c.JSON(fiber.Map{"users": users})
	})

	admin.Get("/users/:wallet", func(c *fiber.Ctx) error {
		detail, err := deps.Admin.WalletDetail(c.UserContext(), c.Params("wallet"))
		if err != nil {
			return respondError(c, "failed to load user", err)
		}
		return c.JSON(detail)
	})

	admin.Post("/staking/distribute", func(c *fiber.Ctx) error {
		day := time.Now().UTC()
		if raw := c.Query("date"); raw != "" {
			parsed, err := time.Parse(services.SnapshotDateLayout, raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "date must be YYYY-MM-DD",
					"cause": err.Error(),
				})
			}
			day = parsed
		}
		report, err := deps.Distributor.Run(c.UserContext(), day)
		if err != nil {
			return respondError(c, "staking distribution failed", err)
		}
		return c.JSON(report)
	})

	admin.Post("/unibridge/verify", func(c *fiber.Ctx) error {
		if deps.Verify == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "status oracle is not configured",
			})
		}
		report, err := deps.Verify(c.UserContext())
		if err != nil {
			return respondError(c, "verification batch failed", err)
		}
		return c.JSON(report)
	})
}
