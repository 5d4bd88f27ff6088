package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VpnCertStatus is the canonical certificate status for a VPN profile
type VpnCertStatus string

const (
	VpnCertStatusValid   VpnCertStatus = "VALID"
	VpnCertStatusPending VpnCertStatus = "PENDING"
	VpnCertStatusRevoked VpnCertStatus = "REVOKED"
	VpnCertStatusExpired VpnCertStatus = "EXPIRED"
	VpnCertStatusUnknown VpnCertStatus = "UNKNOWN"
)

// VpnUser is a certificate-backed connection profile bound to one node.
// The username is the natural key agents correlate by; it is stored
// normalized (see NormalizeUsername) and is globally unique.
type VpnUser struct {
	ID              string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username        string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	NodeID          string        `gorm:"type:varchar(36);index;not null" json:"nodeId"`
	Status          VpnCertStatus `gorm:"type:varchar(16);default:'UNKNOWN'" json:"status"`
	SerialNumber    *string       `gorm:"type:varchar(64)" json:"serialNumber"`
	ExpirationDate  *time.Time    `json:"expirationDate"`
	RevocationDate  *time.Time    `json:"revocationDate"`
	IsActive        bool          `gorm:"default:false" json:"isActive"`
	LastConnected   *time.Time    `json:"lastConnected"`
	OvpnFileContent *string       `gorm:"type:text" json:"ovpnFileContent,omitempty"`
	CreatedAt       time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for VpnUser model
func (VpnUser) TableName() string {
	return "vpn_users"
}

// BeforeCreate assigns a UUID primary key
func (u *VpnUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
