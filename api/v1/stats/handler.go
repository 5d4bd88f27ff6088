package stats

import (
	"encoding/json"
	"time"

	"vpnpanel/internal/cache"
	"vpnpanel/internal/httpx"
	"vpnpanel/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const cacheKey = "vpnpanel:stats"

// Overview holds the dashboard counters
type Overview struct {
	Nodes          int64 `json:"nodes"`
	OnlineNodes    int64 `json:"onlineNodes"`
	Profiles       int64 `json:"profiles"`
	ActiveSessions int64 `json:"activeSessions"`
	PendingActions int64 `json:"pendingActions"`
}

// Handler handles dashboard statistics
type Handler struct {
	db       *gorm.DB
	cacheTTL time.Duration
}

// NewHandler creates a new stats handler
func NewHandler(db *gorm.DB, cacheTTLSec int) *Handler {
	return &Handler{db: db, cacheTTL: time.Duration(cacheTTLSec) * time.Second}
}

// Overview handles GET /api/v1/stats. Counters are cached in Redis for a
// short TTL; the cache is advisory and falls through on any miss.
func (h *Handler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	if raw, ok := cache.GetString(ctx, cacheKey); ok {
		var cached Overview
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			httpx.OK(c, cached)
			return
		}
	}

	var ov Overview
	queries := []struct {
		dest  *int64
		build func(*gorm.DB) *gorm.DB
	}{
		{&ov.Nodes, func(db *gorm.DB) *gorm.DB { return db.Model(&model.Node{}) }},
		{&ov.OnlineNodes, func(db *gorm.DB) *gorm.DB {
			return db.Model(&model.Node{}).Where("status = ?", model.NodeStatusOnline)
		}},
		{&ov.Profiles, func(db *gorm.DB) *gorm.DB { return db.Model(&model.VpnUser{}) }},
		{&ov.ActiveSessions, func(db *gorm.DB) *gorm.DB {
			return db.Model(&model.VpnUser{}).Where("is_active = ?", true)
		}},
		{&ov.PendingActions, func(db *gorm.DB) *gorm.DB {
			return db.Model(&model.ActionLog{}).Where("status = ?", model.ActionStatusPending)
		}},
	}
	for _, q := range queries {
		if err := q.build(h.db).Count(q.dest).Error; err != nil {
			httpx.FailErr(c, httpx.ErrDatabaseError("failed to compute stats", err))
			return
		}
	}

	if raw, err := json.Marshal(ov); err == nil {
		cache.SetString(ctx, cacheKey, string(raw), h.cacheTTL)
	}
	httpx.OK(c, ov)
}
