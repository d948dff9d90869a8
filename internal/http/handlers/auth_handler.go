package handlers

import (
	"errors"

	"github.com/fundraising-token/backend/internal/auth"
	"github.com/fundraising-token/backend/internal/http/dto"
	"github.com/fundraising-token/backend/internal/middleware"
	"github.com/fundraising-token/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// Nonce выдаёт одноразовый nonce и сообщение для подписи.
// POST /auth/nonce
func (h *AuthHandler) Nonce(c *fiber.Ctx) error {
	var req dto.NonceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	addr, err := auth.ParseAddress(req.Address)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ch, err := h.authService.IssueNonce(c.Context(), addr)
	if err != nil {
		h.log.Error("failed to issue nonce", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:     "internal error",
			RequestID: middleware.GetRequestID(c),
		})
	}
	return c.JSON(dto.NonceResponse{
		Nonce:     ch.Nonce.Nonce,
		Message:   ch.Message,
		ExpiresAt: ch.Nonce.ExpiresAt,
	})
}

// Login проверяет подпись personal_sign и выдаёт JWT.
// POST /auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Nonce == "" || req.Signature == "" {
		return badRequest(c, "address, nonce and signature are required")
	}
	addr, err := auth.ParseAddress(req.Address)
	if err != nil {
		return badRequest(c, err.Error())
	}

	token, err := h.authService.Login(c.Context(), addr, req.Nonce, req.Signature)
	if err != nil {
		if errors.Is(err, services.ErrLoginFailed) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:     err.Error(),
				Code:      "authentication",
				RequestID: middleware.GetRequestID(c),
			})
		}
		h.log.Error("login failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:     "internal error",
			RequestID: middleware.GetRequestID(c),
		})
	}

	return c.JSON(dto.AuthResponse{Token: token, Address: addr.Hex()})
}
