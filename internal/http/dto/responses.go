package dto

import (
	"math/big"
	"time"

	"github.com/fundraising-token/backend/internal/ledger"
)

type AuthResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type NonceResponse struct {
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// Amount is a quantity rendered both in wei and in ether.
type Amount struct {
	Wei   string `json:"wei"`
	Ether string `json:"ether"`
}

func NewAmount(v *big.Int) Amount {
	if v == nil {
		v = new(big.Int)
	}
	return Amount{Wei: v.String(), Ether: ledger.FormatEther(v)}
}

type TokenResponse struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply Amount `json:"total_supply"`
}

type FundraisingResponse struct {
	Goal            Amount    `json:"goal"`
	TotalCollected  Amount    `json:"total_collected"`
	EscrowBalance   Amount    `json:"escrow_balance"`
	ProgressPercent int64     `json:"progress_percent"`
	Status          string    `json:"status"`
	Owner           string    `json:"owner"`
	Escrow          string    `json:"escrow"`
	DeployedAt      time.Time `json:"deployed_at"`
	TimeLockOpensAt time.Time `json:"time_lock_opens_at"`
	TimeLockOpen    bool      `json:"time_lock_open"`
}

func NewFundraisingResponse(s *ledger.Snapshot) FundraisingResponse {
	return FundraisingResponse{
		Goal:            NewAmount(s.Goal),
		TotalCollected:  NewAmount(s.TotalCollected),
		EscrowBalance:   NewAmount(s.EscrowBalance),
		ProgressPercent: s.ProgressPercent,
		Status:          string(s.Status),
		Owner:           s.Owner.Hex(),
		Escrow:          s.Escrow.Hex(),
		DeployedAt:      s.DeployedAt,
		TimeLockOpensAt: s.TimeLockOpensAt,
		TimeLockOpen:    s.TimeLockOpen,
	}
}

type BalanceResponse struct {
	Address string `json:"address"`
	Balance Amount `json:"balance"`
}

type ContributionResponse struct {
	Accepted     Amount          `json:"accepted"`
	Refunded     Amount          `json:"refunded"`
	GoalAchieved bool            `json:"goal_achieved"`
	Events       []EventResponse `json:"events"`
}

type WithdrawalResponse struct {
	Account   string          `json:"account"`
	Amount    Amount          `json:"amount"`
	Forfeited bool            `json:"forfeited,omitempty"`
	Events    []EventResponse `json:"events"`
}

type AccountResponse struct {
	Address string   `json:"address"`
	Tokens  Amount   `json:"tokens"`
	Custody Amount   `json:"custody"`
	Roles   []string `json:"roles"`
	IsOwner bool     `json:"is_owner"`
	IsAdmin bool     `json:"is_admin"`
}

type DepositResponse struct {
	Address string `json:"address"`
	Custody Amount `json:"custody"`
}

type EventResponse struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	Type       string    `json:"type"`
	Account    string    `json:"account"`
	Amount     Amount    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewEventResponses(evs []ledger.Event) []EventResponse {
	out := make([]EventResponse, 0, len(evs))
	for _, e := range evs {
		out = append(out, EventResponse{
			ID:         e.ID.String(),
			Seq:        e.Seq,
			Type:       e.Type,
			Account:    e.Account.Hex(),
			Amount:     NewAmount(e.Amount),
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
	Next   int64           `json:"next"` // pass as ?after= to continue
}

type RejectPaymentsResponse struct {
	Address         string `json:"address"`
	RejectsPayments bool   `json:"rejects_payments"`
}
