package models

import "time"

// ActionStatus tracks a bridge/swap action through oracle resolution.
type ActionStatus string

const (
	ActionStatusPending ActionStatus = "pending"
	ActionStatusSuccess ActionStatus = "success"
	ActionStatusFailed  ActionStatus = "failed"
	ActionStatusCapped  ActionStatus = "capped" // succeeded on chain, over the daily limit
)

// Final reports whether the status can no longer change.
func (s ActionStatus) Final() bool {
	return s != ActionStatusPending
}

// UnibridgeAction is a bridge or swap registered by the widget and resolved
// later by the transaction status oracle.
type UnibridgeAction struct {
	TxID       string            `gorm:"primaryKey;type:varchar(128)" json:"tx_id"`
	Wallet     string            `gorm:"type:varchar(42);not null;index" json:"wallet"`
	ActionType string            `gorm:"type:varchar(32);not null;default:'unibridge'" json:"action_type"`
	USDValue   string            `gorm:"type:varchar(64);not null;default:'0'" json:"usd_value"`
	Status     ActionStatus      `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Metadata   map[string]string `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt  time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
