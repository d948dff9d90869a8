package http

import (
	"errors"
	"time"

	"github.com/fundraising-token/backend/internal/config"
	"github.com/fundraising-token/backend/internal/http/dto"
	"github.com/fundraising-token/backend/internal/http/handlers"
	"github.com/fundraising-token/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewApp creates the fiber app with a JSON error handler.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName: "fundraising-token",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{
				Error:     err.Error(),
				RequestID: middleware.GetRequestID(c),
			})
		},
	})
}

type Handlers struct {
	Auth        *handlers.AuthHandler
	Fundraising *handlers.FundraisingHandler
	Account     *handlers.AccountHandler
	WS          *handlers.WSHub
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	gatherer prometheus.Gatherer,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		resp := fiber.Map{"status": "ok"}
		if h.WS != nil {
			resp["ws_clients"] = h.WS.Clients()
		}
		return c.JSON(resp)
	})
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1")

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))

	// Auth (public)
	api.Post("/auth/nonce", h.Auth.Nonce)
	api.Post("/auth/login", h.Auth.Login)

	// Read accessors (public)
	api.Get("/token", h.Fundraising.Token)
	api.Get("/fundraising", h.Fundraising.Fundraising)
	api.Get("/balances/:address", h.Fundraising.Balance)
	api.Get("/events", h.Fundraising.Events)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))
	// второй лимит — на адрес, он известен только после авторизации
	protected.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))

	protected.Get("/me", h.Account.GetMe)
	protected.Post("/mint", h.Fundraising.Mint)
	protected.Post("/withdraw", h.Fundraising.Withdraw)
	protected.Post("/withdraw/mine", h.Fundraising.WithdrawMine)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Post("/accounts/:address/deposit", h.Account.Deposit)
	admin.Put("/accounts/:address/reject-payments", h.Account.RejectPayments)

	// WebSocket
	if h.WS != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(h.WS.HandleWS))
	}
}
