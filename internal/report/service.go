// Package report implements the reconciliation engine: the transactional
// merge of agent-pushed reports into the node and profile records.
//
// Three report streams each own a disjoint subset of VpnUser fields.
// Full and status reports own liveness (isActive, lastConnected); profile
// syncs own certificate truth (status, serial, dates, credential bundle).
// No stream may write a field outside its ownership; that separation is
// what lets concurrent, out-of-order, at-least-once reports overwrite
// each other without corrupting state.
package report

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vpnpanel/internal/audit"
	"vpnpanel/internal/model"
	"vpnpanel/internal/status"
)

var (
	// ErrNodeNotFound is returned when a report targets an unknown node
	ErrNodeNotFound = errors.New("node not found")
	// ErrActionLogNotFound is returned when a completion targets an unknown log
	ErrActionLogNotFound = errors.New("action log not found")
)

// NodeMetrics is the telemetry portion of a report
type NodeMetrics struct {
	CPUUsage      float64
	RAMUsage      float64
	ServiceStatus string
}

// Profile is one certificate profile as reported by an agent
type Profile struct {
	Username        string
	Status          string
	SerialNumber    *string
	ExpirationDate  *time.Time
	RevocationDate  *time.Time
	OvpnFileContent *string
}

// Service applies agent reports to the store. Every method runs as a
// single transaction: all contained writes succeed or none do.
type Service struct {
	db     *gorm.DB
	logger *logrus.Entry
	audit  *audit.Recorder
}

// NewService creates a new reconciliation service
func NewService(db *gorm.DB, logger *logrus.Entry) *Service {
	return &Service{
		db:     db,
		logger: logger.WithField("component", "report-service"),
		audit:  audit.NewRecorder(logger),
	}
}

// IngestFullReport merges a full report: node telemetry, every
// certificate profile the agent knows, and the active-session list.
func (s *Service) IngestFullReport(nodeID string, metrics NodeMetrics, profiles []Profile, activeUsers []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := updateNodeTelemetry(tx, nodeID, metrics, now); err != nil {
			return err
		}

		active := normalizeSet(activeUsers)

		for _, p := range profiles {
			username := model.NormalizeUsername(p.Username)
			if username == "" {
				continue
			}
			isActive := active[username]

			var user model.VpnUser
			err := tx.Where("username = ?", username).First(&user).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				user = model.VpnUser{
					Username:       username,
					NodeID:         nodeID,
					Status:         status.MapCertificateStatus(p.Status),
					SerialNumber:   p.SerialNumber,
					ExpirationDate: p.ExpirationDate,
					RevocationDate: p.RevocationDate,
					IsActive:       isActive,
				}
				if isActive {
					user.LastConnected = &now
				}
				if err := tx.Create(&user).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				// NodeID is never reassigned by a report; the owner set
				// at creation time stays authoritative.
				updates := map[string]interface{}{
					"status":          status.MapCertificateStatus(p.Status),
					"serial_number":   p.SerialNumber,
					"expiration_date": p.ExpirationDate,
					"revocation_date": p.RevocationDate,
					"is_active":       isActive,
				}
				if isActive {
					updates["last_connected"] = now
				}
				if err := tx.Model(&user).Updates(updates).Error; err != nil {
					return err
				}
			}
		}

		// Sweep pass. The upsert loop only sees profiles the agent still
		// reports; a user purged from the agent's certificate store would
		// otherwise keep a stale active session forever.
		var owned []model.VpnUser
		if err := tx.Select("id", "username", "is_active").
			Where("node_id = ?", nodeID).Find(&owned).Error; err != nil {
			return err
		}
		for _, u := range owned {
			if u.IsActive && !active[model.NormalizeUsername(u.Username)] {
				if err := tx.Model(&model.VpnUser{}).Where("id = ?", u.ID).
					Update("is_active", false).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// IngestStatusReport merges a heartbeat: telemetry plus the session
// presence of users the store already knows. It never creates profiles
// and never writes certificate fields.
func (s *Service) IngestStatusReport(nodeID string, metrics NodeMetrics, activeUsers []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := updateNodeTelemetry(tx, nodeID, metrics, now); err != nil {
			return err
		}

		active := normalizeSet(activeUsers)

		var users []model.VpnUser
		if err := tx.Select("id", "username", "is_active").
			Where("node_id = ?", nodeID).Find(&users).Error; err != nil {
			return err
		}

		for _, u := range users {
			isActive := active[model.NormalizeUsername(u.Username)]
			switch {
			case isActive && !u.IsActive:
				// newly active
				if err := tx.Model(&model.VpnUser{}).Where("id = ?", u.ID).
					Updates(map[string]interface{}{"is_active": true, "last_connected": now}).Error; err != nil {
					return err
				}
			case isActive && u.IsActive:
				// still active, refresh the timestamp only
				if err := tx.Model(&model.VpnUser{}).Where("id = ?", u.ID).
					Update("last_connected", now).Error; err != nil {
					return err
				}
			case !isActive && u.IsActive:
				// newly inactive
				if err := tx.Model(&model.VpnUser{}).Where("id = ?", u.ID).
					Update("is_active", false).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// IngestProfileSync merges authoritative certificate state, typically
// derived from the node's revocation ledger. Liveness is out of scope
// here: created profiles start inactive and isActive is never updated.
func (s *Service) IngestProfileSync(nodeID string, profiles []Profile) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Node{}).Where("id = ?", nodeID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNodeNotFound
		}

		for _, p := range profiles {
			username := model.NormalizeUsername(p.Username)
			if username == "" {
				continue
			}

			var user model.VpnUser
			err := tx.Where("username = ?", username).First(&user).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				user = model.VpnUser{
					Username:        username,
					NodeID:          nodeID,
					Status:          status.MapCertificateStatus(p.Status),
					SerialNumber:    p.SerialNumber,
					ExpirationDate:  p.ExpirationDate,
					RevocationDate:  p.RevocationDate,
					OvpnFileContent: p.OvpnFileContent,
					IsActive:        false,
				}
				if err := tx.Create(&user).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				if err := tx.Model(&user).Updates(map[string]interface{}{
					"status":            status.MapCertificateStatus(p.Status),
					"serial_number":     p.SerialNumber,
					"expiration_date":   p.ExpirationDate,
					"revocation_date":   p.RevocationDate,
					"ovpn_file_content": p.OvpnFileContent,
				}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// CompleteAction records the terminal outcome of an action log. Repeat
// completions are allowed and overwrite the terminal fields; agents
// retry and the overwrite is harmless.
//
// For a successful CREATE_USER the log is linked to the VpnUser named in
// Details and a supplied credential bundle is stored on it. The profile
// may not exist yet (the agent's profile sync can arrive after the
// completion call); that case is recorded as a sync inconsistency and
// the call still succeeds, leaving the linker sweep to heal it later.
func (s *Service) CompleteAction(actionLogID string, success bool, message string, ovpnFileContent *string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var logRec model.ActionLog
		if err := tx.Where("id = ?", actionLogID).First(&logRec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActionLogNotFound
			}
			return err
		}

		newStatus := model.ActionStatusCompleted
		if !success {
			newStatus = model.ActionStatusFailed
		}
		now := time.Now()
		if err := tx.Model(&logRec).Updates(map[string]interface{}{
			"status":      newStatus,
			"message":     message,
			"executed_at": now,
		}).Error; err != nil {
			return err
		}

		if logRec.Action != model.ActionCreateUser || !success {
			return nil
		}

		username := model.NormalizeUsername(logRec.Details)
		if username == "" {
			return nil
		}

		var user model.VpnUser
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Warnf("VpnUser %q not found while completing action log %s; waiting for a profile sync", username, logRec.ID)
				s.audit.Record(tx, model.AuditKindSyncInconsistency,
					model.StrPtr(logRec.NodeID), model.StrPtr(logRec.ID),
					"CREATE_USER completed before the profile was synced",
					map[string]any{"username": username})
				return nil
			}
			return err
		}

		if err := tx.Model(&logRec).Update("vpn_user_id", user.ID).Error; err != nil {
			return err
		}
		if ovpnFileContent != nil && *ovpnFileContent != "" {
			// Certificate status stays owned by the profile-sync stream;
			// only the credential bundle is stored here.
			if err := tx.Model(&model.VpnUser{}).Where("id = ?", user.ID).
				Update("ovpn_file_content", *ovpnFileContent).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func updateNodeTelemetry(tx *gorm.DB, nodeID string, metrics NodeMetrics, now time.Time) error {
	var count int64
	if err := tx.Model(&model.Node{}).Where("id = ?", nodeID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNodeNotFound
	}
	return tx.Model(&model.Node{}).Where("id = ?", nodeID).Updates(map[string]interface{}{
		"cpu_usage":      metrics.CPUUsage,
		"ram_usage":      metrics.RAMUsage,
		"service_status": metrics.ServiceStatus,
		"status":         status.MapServiceStatus(metrics.ServiceStatus),
		"last_seen":      now,
	}).Error
}

func normalizeSet(usernames []string) map[string]bool {
	set := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		if n := model.NormalizeUsername(u); n != "" {
			set[n] = true
		}
	}
	return set
}
