package profiles

import (
	"errors"

	"vpnpanel/internal/actions"
	"vpnpanel/internal/httpx"
	"vpnpanel/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CreateRequest represents a profile creation intent
type CreateRequest struct {
	Username string `json:"username" binding:"required"`
	NodeID   string `json:"nodeId" binding:"required"`
}

// ProfileItem is a VPN profile joined with its node name
type ProfileItem struct {
	model.VpnUser
	NodeName string `json:"nodeName" gorm:"-"`
}

// Handler handles VPN profile API
type Handler struct {
	db    *gorm.DB
	queue *actions.Service
}

// NewHandler creates a new profiles handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{
		db:    db,
		queue: actions.NewService(db),
	}
}

// List handles GET /api/v1/profiles
func (h *Handler) List(c *gin.Context) {
	var users []model.VpnUser
	if err := h.db.Order("created_at DESC").Find(&users).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query profiles", err))
		return
	}

	// resolve node names for display
	nodeNames := map[string]string{}
	var nodes []model.Node
	if err := h.db.Select("id", "name").Find(&nodes).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query nodes", err))
		return
	}
	for _, n := range nodes {
		nodeNames[n.ID] = n.Name
	}

	items := make([]ProfileItem, 0, len(users))
	for _, u := range users {
		items = append(items, ProfileItem{VpnUser: u, NodeName: nodeNames[u.NodeID]})
	}
	httpx.OK(c, items)
}

// Create handles POST /api/v1/profiles/create. It only enqueues a
// CREATE_USER intent; the profile row is materialized later by the
// agent's profile sync.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("username and nodeId are required"))
		return
	}

	logRec, err := h.queue.EnqueueCreateUser(req.NodeID, req.Username)
	if err != nil {
		switch {
		case errors.Is(err, actions.ErrNodeNotFound):
			httpx.FailErr(c, httpx.ErrNotFound("node not found"))
		case errors.Is(err, actions.ErrUserExists):
			httpx.FailErr(c, httpx.ErrAlreadyExists("VPN profile for '"+req.Username+"' already exists"))
		case errors.Is(err, actions.ErrCreationPending):
			httpx.FailErr(c, httpx.ErrAlreadyExists("creation for '"+req.Username+"' is already pending"))
		case errors.Is(err, actions.ErrUserNotFound):
			httpx.FailErr(c, httpx.ErrParamInvalid("username must not be empty"))
		default:
			httpx.FailErr(c, httpx.ErrDatabaseError("failed to submit creation request", err))
		}
		return
	}

	httpx.Accepted(c, "VPN profile creation request submitted", gin.H{
		"actionLogId": logRec.ID,
	})
}

// Revoke handles POST /api/v1/profiles/:id/revoke. It enqueues a
// REVOKE_USER intent; the certificate status flips once the node's
// revocation ledger is synced back.
func (h *Handler) Revoke(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("profile id is required"))
		return
	}

	logRec, err := h.queue.Revoke(id)
	if err != nil {
		switch {
		case errors.Is(err, actions.ErrUserNotFound):
			httpx.FailErr(c, httpx.ErrNotFound("VPN user not found"))
		case errors.Is(err, actions.ErrAlreadyRevoked):
			httpx.FailErr(c, httpx.ErrStateConflict("VPN user is already revoked"))
		default:
			httpx.FailErr(c, httpx.ErrDatabaseError("failed to submit revocation request", err))
		}
		return
	}

	httpx.Accepted(c, "VPN profile revocation initiated", gin.H{
		"actionLogId": logRec.ID,
	})
}
