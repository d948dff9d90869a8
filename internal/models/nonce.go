package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthNonce is a single-use login challenge bound to an address.
type AuthNonce struct {
	ID        uuid.UUID `json:"id"`
	Address   string    `json:"address"`
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"-"`
}
