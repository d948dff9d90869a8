package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundraising-token/backend/internal/config"
	"github.com/fundraising-token/backend/internal/ledger"
	"github.com/fundraising-token/backend/internal/models"
	"github.com/fundraising-token/backend/internal/rbac"
	"go.uber.org/zap"
)

// FundraisingService runs caller-initiated ledger operations and records
// the successful ones in the audit log.
type FundraisingService struct {
	ledger *ledger.Ledger
	audit  AuditLogger
	cfg    *config.Config
	log    *zap.Logger
}

func NewFundraisingService(l *ledger.Ledger, audit AuditLogger, cfg *config.Config, log *zap.Logger) *FundraisingService {
	return &FundraisingService{ledger: l, audit: audit, cfg: cfg, log: log}
}

// authorize checks caller's roles against permission. The owner comes from
// the deployed ledger, so it never drifts from config.
func (s *FundraisingService) authorize(ctx context.Context, caller common.Address, permission string) error {
	owner, err := s.ledger.Owner(ctx)
	if err != nil {
		return err
	}
	if !rbac.Can(rbac.RolesFor(caller, owner, s.cfg.AdminAddresses), permission) {
		return fmt.Errorf("%w: %s not permitted", ledger.ErrNotAuthorized, permission)
	}
	return nil
}

func (s *FundraisingService) Contribute(ctx context.Context, sender common.Address, amount *big.Int) (*ledger.ContributionReceipt, error) {
	if err := s.authorize(ctx, sender, rbac.PermContribute); err != nil {
		return nil, err
	}
	r, err := s.ledger.Contribute(ctx, sender, amount)
	if err != nil {
		return nil, err
	}
	logAudit(ctx, s.audit, s.log, models.AuditLog{
		Actor:      sender.Hex(),
		ActorType:  actorType(s.cfg, sender),
		Action:     models.AuditContribute,
		EntityType: "token_balance",
		EntityID:   sender.Hex(),
		Meta: map[string]any{
			"sent_wei":      amount.String(),
			"accepted_wei":  r.Accepted.String(),
			"refunded_wei":  r.Refunded.String(),
			"goal_achieved": r.GoalAchieved,
		},
	})
	return r, nil
}

func (s *FundraisingService) WithdrawOwnerFunds(ctx context.Context, caller common.Address) (*ledger.WithdrawalReceipt, error) {
	if err := s.authorize(ctx, caller, rbac.PermWithdrawOwnerFunds); err != nil {
		return nil, err
	}
	r, err := s.ledger.WithdrawOwnerFunds(ctx, caller)
	if err != nil {
		return nil, err
	}
	logAudit(ctx, s.audit, s.log, models.AuditLog{
		Actor:      caller.Hex(),
		ActorType:  "owner",
		Action:     models.AuditWithdrawOwnerFunds,
		EntityType: "escrow",
		Meta:       map[string]any{"amount_wei": r.Amount.String()},
	})
	return r, nil
}

func (s *FundraisingService) WithdrawContribution(ctx context.Context, caller common.Address) (*ledger.WithdrawalReceipt, error) {
	if err := s.authorize(ctx, caller, rbac.PermWithdrawContribution); err != nil {
		return nil, err
	}
	r, err := s.ledger.WithdrawContribution(ctx, caller)
	if err != nil {
		return nil, err
	}
	logAudit(ctx, s.audit, s.log, models.AuditLog{
		Actor:      caller.Hex(),
		ActorType:  actorType(s.cfg, caller),
		Action:     models.AuditWithdrawContribution,
		EntityType: "token_balance",
		EntityID:   caller.Hex(),
		Meta:       map[string]any{"amount_wei": r.Amount.String(), "forfeited": r.Forfeited},
	})
	return r, nil
}
