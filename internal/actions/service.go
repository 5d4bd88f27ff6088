// Package actions implements the durable queue of administrative
// intents. Admins enqueue, agents poll and complete. Polling never
// claims a log: an agent may observe the same pending entry on repeated
// polls until it reports completion (at-least-once delivery).
package actions

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"vpnpanel/internal/model"
)

var (
	// ErrNodeNotFound is returned when the target node does not exist
	ErrNodeNotFound = errors.New("node not found")
	// ErrUserNotFound is returned when the target VPN user does not exist
	ErrUserNotFound = errors.New("vpn user not found")
	// ErrUserExists is returned when a profile with the username already exists
	ErrUserExists = errors.New("vpn user already exists")
	// ErrCreationPending is returned when a CREATE_USER intent for the username is already queued
	ErrCreationPending = errors.New("creation already pending")
	// ErrAlreadyRevoked is returned when revoking an already revoked user
	ErrAlreadyRevoked = errors.New("vpn user already revoked")
)

// Service manages action logs
type Service struct {
	db *gorm.DB
}

// NewService creates a new action queue service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// EnqueueCreateUser queues a CREATE_USER intent for a node. The VpnUser
// row itself is materialized later by the agent's profile sync; only the
// intent is recorded here.
func (s *Service) EnqueueCreateUser(nodeID, username string) (*model.ActionLog, error) {
	normalized := model.NormalizeUsername(username)
	if normalized == "" {
		return nil, ErrUserNotFound
	}

	var logRec model.ActionLog
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Node{}).Where("id = ?", nodeID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNodeNotFound
		}

		if err := tx.Model(&model.VpnUser{}).Where("username = ?", normalized).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserExists
		}

		// Pre-insert existence check, not a unique constraint: two
		// concurrent enqueues for the same username can both pass this
		// read (TOCTOU). Known limitation; the transaction narrows the
		// window but does not close it.
		if err := tx.Model(&model.ActionLog{}).
			Where("action = ? AND details = ? AND status = ?",
				model.ActionCreateUser, normalized, model.ActionStatusPending).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrCreationPending
		}

		logRec = model.ActionLog{
			Action:  model.ActionCreateUser,
			NodeID:  nodeID,
			Details: normalized,
			Status:  model.ActionStatusPending,
		}
		return tx.Create(&logRec).Error
	})
	if err != nil {
		return nil, err
	}
	return &logRec, nil
}

// Revoke queues a REVOKE_USER intent for an existing VPN user. The
// user's certificate status is not changed here; a later profile sync
// reports the revocation from the node's ledger.
func (s *Service) Revoke(vpnUserID string) (*model.ActionLog, error) {
	var logRec model.ActionLog
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user model.VpnUser
		if err := tx.Where("id = ?", vpnUserID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if user.Status == model.VpnCertStatusRevoked {
			return ErrAlreadyRevoked
		}

		logRec = model.ActionLog{
			Action:    model.ActionRevokeUser,
			NodeID:    user.NodeID,
			VpnUserID: &user.ID,
			Details:   user.Username,
			Status:    model.ActionStatusPending,
		}
		return tx.Create(&logRec).Error
	})
	if err != nil {
		return nil, err
	}
	return &logRec, nil
}

// Pending returns all pending action logs for a node, oldest first.
// Read-only: entries stay pending until the agent reports completion.
func (s *Service) Pending(nodeID string) ([]model.ActionLog, error) {
	var logs []model.ActionLog
	err := s.db.Where("node_id = ? AND status = ?", nodeID, model.ActionStatusPending).
		Order("created_at ASC").Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// RecentLog is an action log joined with node and user names for display
type RecentLog struct {
	ID         string             `json:"id"`
	Action     model.ActionType   `json:"action"`
	NodeID     string             `json:"nodeId"`
	NodeName   string             `json:"nodeName"`
	VpnUserID  *string            `json:"vpnUserId"`
	Username   *string            `json:"username"`
	Details    string             `json:"details"`
	Status     model.ActionStatus `json:"status"`
	Message    string             `json:"message"`
	CreatedAt  time.Time          `json:"createdAt"`
	ExecutedAt *time.Time         `json:"executedAt"`
}

// Recent returns the newest action logs with node and user names
func (s *Service) Recent(limit int) ([]RecentLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []RecentLog
	err := s.db.Table("action_logs").
		Select("action_logs.id, action_logs.action, action_logs.node_id, " +
			"nodes.name AS node_name, action_logs.vpn_user_id, " +
			"vpn_users.username AS username, action_logs.details, " +
			"action_logs.status, action_logs.message, " +
			"action_logs.created_at, action_logs.executed_at").
		Joins("LEFT JOIN nodes ON nodes.id = action_logs.node_id").
		Joins("LEFT JOIN vpn_users ON vpn_users.id = action_logs.vpn_user_id").
		Order("action_logs.created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
