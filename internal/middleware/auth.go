package middleware

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundraising-token/backend/internal/auth"
	"github.com/fundraising-token/backend/internal/config"
	"github.com/fundraising-token/backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const CtxAddress = "address"

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "missing authorization header")
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return unauthorized(c, "invalid authorization format")
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return unauthorized(c, "invalid or expired token")
		}

		c.Locals(CtxAddress, claims.Account())
		return c.Next()
	}
}

// GetAddress returns the authenticated caller, or the zero address.
func GetAddress(c *fiber.Ctx) common.Address {
	addr, _ := c.Locals(CtxAddress).(common.Address)
	return addr
}

// AdminMiddleware requires the caller to be listed in ADMIN_ADDRESSES.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.IsAdmin(GetAddress(c)) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error:     "admin access required",
				Code:      "authorization",
				RequestID: GetRequestID(c),
			})
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      "authentication",
		RequestID: GetRequestID(c),
	})
}
