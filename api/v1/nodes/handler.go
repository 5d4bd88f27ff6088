package nodes

import (
	"errors"

	"vpnpanel/internal/httpx"
	"vpnpanel/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var (
	errNameTaken  = errors.New("node name already exists")
	errTokenTaken = errors.New("node token already in use")
)

// CreateRequest represents create node request
type CreateRequest struct {
	Name     string `json:"name" binding:"required"`
	IP       string `json:"ip" binding:"required"`
	Location string `json:"location"`
	Token    string `json:"token" binding:"required"`
}

// DeleteRequest represents delete node request
type DeleteRequest struct {
	ID string `json:"id" binding:"required"`
}

// Handler handles nodes API
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new nodes handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// List handles GET /api/v1/nodes
func (h *Handler) List(c *gin.Context) {
	var nodes []model.Node
	if err := h.db.Order("name ASC").Find(&nodes).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query nodes", err))
		return
	}
	httpx.OK(c, nodes)
}

// Get handles GET /api/v1/nodes/:id
func (h *Handler) Get(c *gin.Context) {
	var node model.Node
	if err := h.db.Where("id = ?", c.Param("id")).First(&node).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("node not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query node", err))
		return
	}
	httpx.OK(c, node)
}

// Create handles POST /api/v1/nodes/create
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("node name, ip and token are required"))
		return
	}

	node := model.Node{
		Name:     req.Name,
		IP:       req.IP,
		Location: req.Location,
		Token:    req.Token,
		Status:   model.NodeStatusUnknown,
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Node{}).Where("name = ?", req.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errNameTaken
		}
		if err := tx.Model(&model.Node{}).Where("token = ?", req.Token).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errTokenTaken
		}
		return tx.Create(&node).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errNameTaken):
			httpx.FailErr(c, httpx.ErrAlreadyExists("a node with this name already exists"))
		case errors.Is(err, errTokenTaken):
			httpx.FailErr(c, httpx.ErrAlreadyExists("this token is already in use by another node"))
		default:
			httpx.FailErr(c, httpx.ErrDatabaseError("failed to create node", err))
		}
		return
	}

	httpx.Created(c, node)
}

// Delete handles POST /api/v1/nodes/delete. Deleting a node cascades to
// its owned profiles and action logs.
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("node id is required"))
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		var node model.Node
		if err := tx.Where("id = ?", req.ID).First(&node).Error; err != nil {
			return err
		}
		if err := tx.Where("node_id = ?", node.ID).Delete(&model.ActionLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("node_id = ?", node.ID).Delete(&model.VpnUser{}).Error; err != nil {
			return err
		}
		return tx.Delete(&node).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("node not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete node", err))
		return
	}

	httpx.OKMsg(c, "node deleted", nil)
}
