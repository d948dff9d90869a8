package services

import (
	"context"
	"time"

	"github.com/fundraising-token/backend/internal/models"
)

// NonceStore issues and consumes single-use login nonces.
type NonceStore interface {
	Create(ctx context.Context, address string, ttl time.Duration) (*models.AuthNonce, error)
	Consume(ctx context.Context, address, nonce string) (*models.AuthNonce, error)
}

// AuditLogger persists audit entries. A nil AuditLogger disables auditing.
type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}
