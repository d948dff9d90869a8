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

type AccountService struct {
	ledger *ledger.Ledger
	audit  AuditLogger
	cfg    *config.Config
	log    *zap.Logger
}

func NewAccountService(l *ledger.Ledger, audit AuditLogger, cfg *config.Config, log *zap.Logger) *AccountService {
	return &AccountService{ledger: l, audit: audit, cfg: cfg, log: log}
}

type Account struct {
	Address common.Address
	Tokens  *big.Int
	Native  *big.Int
	Roles   []string
	IsOwner bool
	IsAdmin bool
}

func (s *AccountService) Get(ctx context.Context, address common.Address) (*Account, error) {
	tokens, err := s.ledger.BalanceOf(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read token balance: %w", err)
	}
	native, err := s.ledger.NativeBalanceOf(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read custody balance: %w", err)
	}
	snap, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	roles := rbac.RolesFor(address, snap.Owner, s.cfg.AdminAddresses)
	return &Account{
		Address: address,
		Tokens:  tokens,
		Native:  native,
		Roles:   roles,
		IsOwner: snap.Owner == address,
		IsAdmin: s.cfg.IsAdmin(address),
	}, nil
}

// Deposit credits custody funds to account on behalf of an admin.
func (s *AccountService) Deposit(ctx context.Context, admin, account common.Address, amount *big.Int) (*big.Int, error) {
	if !rbac.Can(rbac.RolesFor(admin, common.Address{}, s.cfg.AdminAddresses), rbac.PermDepositCustody) {
		return nil, fmt.Errorf("%w: admin access required", ledger.ErrNotAuthorized)
	}
	balance, err := s.ledger.Deposit(ctx, account, amount)
	if err != nil {
		return nil, err
	}

	logAudit(ctx, s.audit, s.log, models.AuditLog{
		Actor:      admin.Hex(),
		ActorType:  "admin",
		Action:     models.AuditDeposit,
		EntityType: "custody_account",
		EntityID:   account.Hex(),
		Meta:       map[string]any{"amount_wei": amount.String(), "balance_wei": balance.String()},
	})

	s.log.Info("custody deposit",
		zap.String("admin", admin.Hex()),
		zap.String("account", account.Hex()),
		zap.String("amount_wei", amount.String()),
	)
	return balance, nil
}

// SetRejectPayments lets an admin stop (or resume) payouts to a custody
// account, e.g. one that cannot receive funds.
func (s *AccountService) SetRejectPayments(ctx context.Context, admin, account common.Address, reject bool) error {
	if !rbac.Can(rbac.RolesFor(admin, common.Address{}, s.cfg.AdminAddresses), rbac.PermManageCustody) {
		return fmt.Errorf("%w: admin access required", ledger.ErrNotAuthorized)
	}
	if err := s.ledger.SetRejectPayments(ctx, account, reject); err != nil {
		return err
	}

	logAudit(ctx, s.audit, s.log, models.AuditLog{
		Actor:      admin.Hex(),
		ActorType:  "admin",
		Action:     models.AuditRejectPayments,
		EntityType: "custody_account",
		EntityID:   account.Hex(),
		Meta:       map[string]any{"reject": reject},
	})
	return nil
}
