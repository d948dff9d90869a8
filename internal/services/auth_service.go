package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundraising-token/backend/internal/auth"
	"github.com/fundraising-token/backend/internal/config"
	"github.com/fundraising-token/backend/internal/models"
	"go.uber.org/zap"
)

var ErrLoginFailed = errors.New("login failed")

type AuthService struct {
	nonces NonceStore
	audit  AuditLogger
	cfg    *config.Config
	log    *zap.Logger
}

func NewAuthService(nonces NonceStore, audit AuditLogger, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{nonces: nonces, audit: audit, cfg: cfg, log: log}
}

type Challenge struct {
	Nonce   *models.AuthNonce `json:"nonce"`
	Message string            `json:"message"`
}

// IssueNonce создаёт nonce и текст, который кошелёк подписывает через personal_sign.
func (s *AuthService) IssueNonce(ctx context.Context, address common.Address) (*Challenge, error) {
	n, err := s.nonces.Create(ctx, address.Hex(), s.cfg.NonceTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create nonce: %w", err)
	}
	return &Challenge{
		Nonce:   n,
		Message: auth.LoginMessage(s.cfg.LoginDomain, address, n.Nonce),
	}, nil
}

// Login проверяет подпись и выдаёт JWT. Nonce сжигается до проверки
// подписи, поэтому повторить попытку с тем же nonce нельзя.
func (s *AuthService) Login(ctx context.Context, address common.Address, nonce, signature string) (string, error) {
	// 1. Consume nonce — защита от replay
	if _, err := s.nonces.Consume(ctx, address.Hex(), nonce); err != nil {
		s.log.Debug("nonce rejected", zap.String("address", address.Hex()), zap.Error(err))
		return "", fmt.Errorf("%w: invalid or expired nonce", ErrLoginFailed)
	}

	// 2. Verify EIP-191 signature
	msg := auth.LoginMessage(s.cfg.LoginDomain, address, nonce)
	if err := auth.VerifyPersonalSign(address, msg, signature); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	token, err := auth.GenerateJWT(s.cfg.JWTSecret, address, s.cfg.JWTExpiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	logAudit(ctx, s.audit, s.log, models.AuditLog{
		Actor:      address.Hex(),
		ActorType:  actorType(s.cfg, address),
		Action:     models.AuditLogin,
		EntityType: "session",
	})

	s.log.Info("user logged in", zap.String("address", address.Hex()))
	return token, nil
}

func actorType(cfg *config.Config, address common.Address) string {
	if cfg.IsAdmin(address) {
		return "admin"
	}
	return "user"
}

func logAudit(ctx context.Context, audit AuditLogger, log *zap.Logger, entry models.AuditLog) {
	if audit == nil {
		return
	}
	if err := audit.Log(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}
