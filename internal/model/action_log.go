package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActionType identifies an administrative intent executed by an agent
type ActionType string

const (
	ActionCreateUser ActionType = "CREATE_USER"
	ActionRevokeUser ActionType = "REVOKE_USER"
	ActionDeleteUser ActionType = "DELETE_USER"
)

// ActionStatus is the lifecycle state of an action log
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "PENDING"
	ActionStatusCompleted ActionStatus = "COMPLETED"
	ActionStatusFailed    ActionStatus = "FAILED"
)

// ActionLog records one administrative intent and its asynchronous outcome.
// VpnUserID is a weak reference: for CREATE_USER it stays nil until the
// profile is materialized by a sync report and linked on completion.
type ActionLog struct {
	ID         string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	Action     ActionType   `gorm:"type:varchar(32);not null" json:"action"`
	NodeID     string       `gorm:"type:varchar(36);index;not null" json:"nodeId"`
	VpnUserID  *string      `gorm:"type:varchar(36)" json:"vpnUserId"`
	Details    string       `gorm:"type:varchar(255)" json:"details"`
	Status     ActionStatus `gorm:"type:varchar(16);default:'PENDING';index" json:"status"`
	Message    string       `gorm:"type:varchar(255)" json:"message"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"createdAt"`
	ExecutedAt *time.Time   `json:"executedAt"`
}

// TableName specifies the table name for ActionLog model
func (ActionLog) TableName() string {
	return "action_logs"
}

// BeforeCreate assigns a UUID primary key
func (l *ActionLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
