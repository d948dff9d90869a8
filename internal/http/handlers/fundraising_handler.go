package handlers

import (
	"github.com/fundraising-token/backend/internal/auth"
	"github.com/fundraising-token/backend/internal/http/dto"
	"github.com/fundraising-token/backend/internal/ledger"
	"github.com/fundraising-token/backend/internal/middleware"
	"github.com/fundraising-token/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type FundraisingHandler struct {
	ledger  *ledger.Ledger
	service *services.FundraisingService
	log     *zap.Logger
}

func NewFundraisingHandler(l *ledger.Ledger, service *services.FundraisingService, log *zap.Logger) *FundraisingHandler {
	return &FundraisingHandler{ledger: l, service: service, log: log}
}

// GET /token
func (h *FundraisingHandler) Token(c *fiber.Ctx) error {
	supply, err := h.ledger.TotalCollected(c.Context())
	if err != nil {
		return ledgerError(c, h.log, err)
	}
	info := h.ledger.TokenInfo()
	return c.JSON(dto.TokenResponse{
		Name:        info.Name,
		Symbol:      info.Symbol,
		Decimals:    info.Decimals,
		TotalSupply: dto.NewAmount(supply),
	})
}

// GET /fundraising
func (h *FundraisingHandler) Fundraising(c *fiber.Ctx) error {
	snap, err := h.ledger.Snapshot(c.Context())
	if err != nil {
		return ledgerError(c, h.log, err)
	}
	return c.JSON(dto.NewFundraisingResponse(snap))
}

// GET /balances/:address
func (h *FundraisingHandler) Balance(c *fiber.Ctx) error {
	addr, err := auth.ParseAddress(c.Params("address"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	bal, err := h.ledger.BalanceOf(c.Context(), addr)
	if err != nil {
		return ledgerError(c, h.log, err)
	}
	return c.JSON(dto.BalanceResponse{Address: addr.Hex(), Balance: dto.NewAmount(bal)})
}

// GET /events?after=&limit=
func (h *FundraisingHandler) Events(c *fiber.Ctx) error {
	after := int64(c.QueryInt("after", 0))
	if after < 0 {
		return badRequest(c, "after must be non-negative")
	}
	evs, err := h.ledger.Events(c.Context(), after, c.QueryInt("limit", 100))
	if err != nil {
		return ledgerError(c, h.log, err)
	}
	next := after
	if len(evs) > 0 {
		next = evs[len(evs)-1].Seq
	}
	return c.JSON(dto.EventsResponse{Events: dto.NewEventResponses(evs), Next: next})
}

// Mint принимает взнос; излишек сверх цели возвращается.
// POST /mint
func (h *FundraisingHandler) Mint(c *fiber.Ctx) error {
	var req dto.ValueRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	value, err := requestValue(req)
	if err != nil {
		return ledgerError(c, h.log, err)
	}

	r, err := h.service.Contribute(c.Context(), middleware.GetAddress(c), value)
	if err != nil {
		return ledgerError(c, h.log, err)
	}
	return c.JSON(dto.ContributionResponse{
		Accepted:     dto.NewAmount(r.Accepted),
		Refunded:     dto.NewAmount(r.Refunded),
		GoalAchieved: r.GoalAchieved,
		Events:       dto.NewEventResponses(r.Events),
	})
}

// Withdraw выводит собранные средства владельцу.
// POST /withdraw
func (h *FundraisingHandler) Withdraw(c *fiber.Ctx) error {
	r, err := h.service.WithdrawOwnerFunds(c.Context(), middleware.GetAddress(c))
	if err != nil {
		return ledgerError(c, h.log, err)
	}
	return c.JSON(withdrawalResponse(r))
}

// WithdrawMine возвращает взнос вызывающему.
// POST /withdraw/mine
func (h *FundraisingHandler) WithdrawMine(c *fiber.Ctx) error {
	r, err := h.service.WithdrawContribution(c.Context(), middleware.GetAddress(c))
	if err != nil {
		return ledgerError(c, h.log, err)
	}
	return c.JSON(withdrawalResponse(r))
}

func withdrawalResponse(r *ledger.WithdrawalReceipt) dto.WithdrawalResponse {
	return dto.WithdrawalResponse{
		Account:   r.Account.Hex(),
		Amount:    dto.NewAmount(r.Amount),
		Forfeited: r.Forfeited,
		Events:    dto.NewEventResponses(r.Events),
	}
}
