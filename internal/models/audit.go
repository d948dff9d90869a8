package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	AuditContribute           = "contribute"
	AuditWithdrawOwnerFunds   = "withdraw_owner_funds"
	AuditWithdrawContribution = "withdraw_contribution"
	AuditDeposit              = "custody_deposit"
	AuditRejectPayments       = "custody_reject_payments"
	AuditLogin                = "login"
)

type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	Actor      string    `json:"actor"`      // 0x address, or "system"
	ActorType  string    `json:"actor_type"` // user/admin/system
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id,omitempty"`
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
