package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NodeStatus is the canonical node health derived from agent reports
type NodeStatus string

const (
	NodeStatusOnline  NodeStatus = "ONLINE"
	NodeStatusOffline NodeStatus = "OFFLINE"
	NodeStatusUnknown NodeStatus = "UNKNOWN"
)

// Node represents a managed VPN server instance
type Node struct {
	ID            string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"name"`
	IP            string     `gorm:"type:varchar(64);not null" json:"ip"`
	Location      string     `gorm:"type:varchar(128)" json:"location"`
	Token         string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"-"`
	CPUUsage      float64    `gorm:"default:0" json:"cpuUsage"`
	RAMUsage      float64    `gorm:"default:0" json:"ramUsage"`
	ServiceStatus string     `gorm:"type:varchar(64)" json:"serviceStatus"`
	Status        NodeStatus `gorm:"type:varchar(16);default:'UNKNOWN'" json:"status"`
	LastSeen      *time.Time `json:"lastSeen"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`

	VpnUsers   []VpnUser   `gorm:"foreignKey:NodeID;constraint:OnDelete:CASCADE" json:"-"`
	ActionLogs []ActionLog `gorm:"foreignKey:NodeID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Node model
func (Node) TableName() string {
	return "nodes"
}

// BeforeCreate assigns a UUID primary key
func (n *Node) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
