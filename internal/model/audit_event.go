package model

import (
	"time"

	"gorm.io/datatypes"
)

// Audit event kinds
const (
	AuditKindSyncInconsistency = "sync_inconsistency"
	AuditKindActionLinked      = "action_linked"
)

// AuditEvent is a durable record of a soft inconsistency or internal
// reconciliation step. These never surface to the caller; they are the
// only place unlinked completions and self-heals are observable.
type AuditEvent struct {
	ID          int            `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind        string         `gorm:"type:varchar(64);index;not null" json:"kind"`
	NodeID      *string        `gorm:"type:varchar(36);index" json:"nodeId"`
	ActionLogID *string        `gorm:"type:varchar(36)" json:"actionLogId"`
	Message     string         `gorm:"type:varchar(255)" json:"message"`
	Payload     datatypes.JSON `json:"payload"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName specifies the table name for AuditEvent model
func (AuditEvent) TableName() string {
	return "audit_events"
}
