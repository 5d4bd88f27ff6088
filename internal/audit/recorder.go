package audit

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vpnpanel/internal/model"
)

// Recorder persists audit events. Recording failures are logged and
// swallowed: an audit write must never fail the operation it describes.
type Recorder struct {
	logger *logrus.Entry
}

// NewRecorder creates a new audit recorder
func NewRecorder(logger *logrus.Entry) *Recorder {
	return &Recorder{logger: logger.WithField("component", "audit")}
}

// Record writes an audit event using the given handle, which may be a
// transaction so the event commits atomically with the operation.
func (r *Recorder) Record(tx *gorm.DB, kind string, nodeID, actionLogID *string, message string, payload any) {
	event := model.AuditEvent{
		Kind:        kind,
		NodeID:      nodeID,
		ActionLogID: actionLogID,
		Message:     message,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			r.logger.Warnf("Failed to marshal audit payload: %v", err)
		} else {
			event.Payload = raw
		}
	}
	if err := tx.Create(&event).Error; err != nil {
		r.logger.Warnf("Failed to record audit event %q: %v", kind, err)
	}
}
