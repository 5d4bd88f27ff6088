// Package agent implements the agent-facing endpoints: action polling,
// action completion, and the three report ingestion routes.
package agent

import (
	"errors"
	"time"

	"vpnpanel/internal/actions"
	"vpnpanel/internal/httpx"
	"vpnpanel/internal/model"
	"vpnpanel/internal/report"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handler handles agent requests
type Handler struct {
	reports *report.Service
	queue   *actions.Service
}

// NewHandler creates a new agent handler
func NewHandler(db *gorm.DB, logger *logrus.Entry) *Handler {
	return &Handler{
		reports: report.NewService(db, logger),
		queue:   actions.NewService(db),
	}
}

// PendingAction is the wire shape an agent receives when polling
type PendingAction struct {
	ID        string           `json:"id"`
	Action    model.ActionType `json:"action"`
	VpnUserID *string          `json:"vpnUserId"`
	Details   string           `json:"details"`
}

// Actions handles GET /api/v1/agent/actions?serverId=X
func (h *Handler) Actions(c *gin.Context) {
	serverID := c.Query("serverId")
	if serverID == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("serverId query parameter is required"))
		return
	}

	logs, err := h.queue.Pending(serverID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query pending actions", err))
		return
	}

	items := make([]PendingAction, 0, len(logs))
	for _, l := range logs {
		items = append(items, PendingAction{
			ID:        l.ID,
			Action:    l.Action,
			VpnUserID: l.VpnUserID,
			Details:   l.Details,
		})
	}
	httpx.OK(c, items)
}

// CompleteRequest is the completion callback body
type CompleteRequest struct {
	ActionLogID     string  `json:"actionLogId" binding:"required"`
	Status          string  `json:"status" binding:"required,oneof=success failed"`
	Message         string  `json:"message"`
	OvpnFileContent *string `json:"ovpnFileContent"`
}

// Complete handles POST /api/v1/agent/actions/complete
func (h *Handler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	err := h.reports.CompleteAction(req.ActionLogID, req.Status == "success", req.Message, req.OvpnFileContent)
	if err != nil {
		if errors.Is(err, report.ErrActionLogNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("action log not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to complete action", err))
		return
	}
	httpx.OKMsg(c, "action log completed", nil)
}

// ProfileRequest is one certificate profile in a report body
type ProfileRequest struct {
	Username        string     `json:"username"`
	Status          string     `json:"status"`
	ExpirationDate  *time.Time `json:"expirationDate"`
	RevocationDate  *time.Time `json:"revocationDate"`
	SerialNumber    *string    `json:"serialNumber"`
	OvpnFileContent *string    `json:"ovpnFileContent"`
}

// MetricsRequest is the telemetry portion of a report body
type MetricsRequest struct {
	ServerID      string   `json:"serverId"`
	CPUUsage      float64  `json:"cpuUsage"`
	RAMUsage      float64  `json:"ramUsage"`
	ServiceStatus string   `json:"serviceStatus"`
	ActiveUsers   []string `json:"activeUsers"`
}

// FullReportRequest is the POST /reports/full body
type FullReportRequest struct {
	NodeMetrics MetricsRequest   `json:"nodeMetrics"`
	VpnProfiles []ProfileRequest `json:"vpnProfiles"`
}

// FullReport handles POST /api/v1/agent/reports/full
func (h *Handler) FullReport(c *gin.Context) {
	var req FullReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}
	if req.NodeMetrics.ServerID == "" || req.NodeMetrics.ServiceStatus == "" ||
		req.NodeMetrics.ActiveUsers == nil || req.VpnProfiles == nil {
		httpx.FailErr(c, httpx.ErrParamMissing("missing required fields in full report"))
		return
	}

	err := h.reports.IngestFullReport(
		req.NodeMetrics.ServerID,
		toMetrics(req.NodeMetrics),
		toProfiles(req.VpnProfiles),
		req.NodeMetrics.ActiveUsers,
	)
	if err != nil {
		failReport(c, req.NodeMetrics.ServerID, err)
		return
	}
	httpx.OKMsg(c, "full report processed", nil)
}

// StatusReport handles POST /api/v1/agent/reports/status
func (h *Handler) StatusReport(c *gin.Context) {
	var req MetricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}
	if req.ServerID == "" || req.ServiceStatus == "" || req.ActiveUsers == nil {
		httpx.FailErr(c, httpx.ErrParamMissing("missing required fields in status report"))
		return
	}

	err := h.reports.IngestStatusReport(req.ServerID, toMetrics(req), req.ActiveUsers)
	if err != nil {
		failReport(c, req.ServerID, err)
		return
	}
	httpx.OKMsg(c, "status reported", nil)
}

// SyncProfilesRequest is the POST /reports/sync-profiles body
type SyncProfilesRequest struct {
	ServerID    string           `json:"serverId"`
	VpnProfiles []ProfileRequest `json:"vpnProfiles"`
}

// SyncProfiles handles POST /api/v1/agent/reports/sync-profiles
func (h *Handler) SyncProfiles(c *gin.Context) {
	var req SyncProfilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}
	if req.ServerID == "" || req.VpnProfiles == nil {
		httpx.FailErr(c, httpx.ErrParamMissing("serverId and vpnProfiles are required"))
		return
	}

	err := h.reports.IngestProfileSync(req.ServerID, toProfiles(req.VpnProfiles))
	if err != nil {
		failReport(c, req.ServerID, err)
		return
	}
	httpx.OKMsg(c, "profiles synced", nil)
}

func toMetrics(m MetricsRequest) report.NodeMetrics {
	return report.NodeMetrics{
		CPUUsage:      m.CPUUsage,
		RAMUsage:      m.RAMUsage,
		ServiceStatus: m.ServiceStatus,
	}
}

func toProfiles(reqs []ProfileRequest) []report.Profile {
	profiles := make([]report.Profile, 0, len(reqs))
	for _, p := range reqs {
		profiles = append(profiles, report.Profile{
			Username:        p.Username,
			Status:          p.Status,
			SerialNumber:    p.SerialNumber,
			ExpirationDate:  p.ExpirationDate,
			RevocationDate:  p.RevocationDate,
			OvpnFileContent: p.OvpnFileContent,
		})
	}
	return profiles
}

func failReport(c *gin.Context, serverID string, err error) {
	if errors.Is(err, report.ErrNodeNotFound) {
		httpx.FailErr(c, httpx.ErrNotFound("node "+serverID+" not found"))
		return
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		httpx.FailErr(c, httpx.ErrAlreadyExists("unique constraint violation during profile synchronization"))
		return
	}
	httpx.FailErr(c, httpx.ErrDatabaseError("failed to process report", err))
}
