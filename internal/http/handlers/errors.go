package handlers

import (
	"fmt"
	"math/big"

	"github.com/fundraising-token/backend/internal/http/dto"
	"github.com/fundraising-token/backend/internal/ledger"
	"github.com/fundraising-token/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(kind ledger.ErrorKind) int {
	switch kind {
	case ledger.KindValidation, ledger.KindArithmetic:
		return fiber.StatusBadRequest
	case ledger.KindAuthorization:
		return fiber.StatusForbidden
	case ledger.KindState:
		return fiber.StatusConflict
	case ledger.KindTransfer:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func ledgerError(c *fiber.Ctx, log *zap.Logger, err error) error {
	kind := ledger.Kind(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error("ledger request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "internal error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      string(kind),
		RequestID: middleware.GetRequestID(c),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      string(ledger.KindValidation),
		RequestID: middleware.GetRequestID(c),
	})
}

// requestValue parses the amount of a ValueRequest.
func requestValue(req dto.ValueRequest) (*big.Int, error) {
	switch {
	case req.Value != "" && req.Wei != "":
		return nil, fmt.Errorf("%w: set either value or wei", ledger.ErrInvalidAmount)
	case req.Wei != "":
		return ledger.ParseWei(req.Wei)
	default:
		return ledger.ParseEther(req.Value)
	}
}
