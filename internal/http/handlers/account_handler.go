package handlers

import (
	"github.com/fundraising-token/backend/internal/auth"
	"github.com/fundraising-token/backend/internal/http/dto"
	"github.com/fundraising-token/backend/internal/middleware"
	"github.com/fundraising-token/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AccountHandler struct {
	accountService *services.AccountService
	log            *zap.Logger
}

func NewAccountHandler(accountService *services.AccountService, log *zap.Logger) *AccountHandler {
	return &AccountHandler{accountService: accountService, log: log}
}

// GET /me
func (h *AccountHandler) GetMe(c *fiber.Ctx) error {
	acc, err := h.accountService.Get(c.Context(), middleware.GetAddress(c))
	if err != nil {
		return ledgerError(c, h.log, err)
	}
	return c.JSON(dto.AccountResponse{
		Address: acc.Address.Hex(),
		Tokens:  dto.NewAmount(acc.Tokens),
		Custody: dto.NewAmount(acc.Native),
		Roles:   acc.Roles,
		IsOwner: acc.IsOwner,
		IsAdmin: acc.IsAdmin,
	})
}

// Deposit зачисляет средства на кастодиальный счёт (только админ).
// POST /admin/accounts/:address/deposit
func (h *AccountHandler) Deposit(c *fiber.Ctx) error {
	addr, err := auth.ParseAddress(c.Params("address"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req dto.ValueRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	value, err := requestValue(req)
	if err != nil {
		return ledgerError(c, h.log, err)
	}

	balance, err := h.accountService.Deposit(c.Context(), middleware.GetAddress(c), addr, value)
	if err != nil {
		return ledgerError(c, h.log, err)
	}
	return c.JSON(dto.DepositResponse{Address: addr.Hex(), Custody: dto.NewAmount(balance)})
}

// RejectPayments включает или снимает запрет на выплаты на счёт.
// PUT /admin/accounts/:address/reject-payments
func (h *AccountHandler) RejectPayments(c *fiber.Ctx) error {
	addr, err := auth.ParseAddress(c.Params("address"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req dto.RejectPaymentsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.accountService.SetRejectPayments(c.Context(), middleware.GetAddress(c), addr, req.Reject); err != nil {
		return ledgerError(c, h.log, err)
	}
	return c.JSON(dto.RejectPaymentsResponse{Address: addr.Hex(), RejectsPayments: req.Reject})
}
