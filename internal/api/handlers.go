package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// POST /api/v1/tenants/:tenant/discover
// Runs a full discovery pass for the tenant and returns ranked loops plus
// run metadata.
func (h *APIHandler) handleDiscover(c *gin.Context) {
	tenantID := c.Param("tenant")

	var opts models.DiscoveryOpts
	_ = c.ShouldBindJSON(&opts) // absent/empty body just uses zero-value defaults

	result, err := h.orchestrator.Discover(c.Request.Context(), tenantID, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"loops":    result.Loops,
		"metadata": result.Metadata,
	})
}

// GET /api/v1/tenants/:tenant/wallets/:wallet/loops
func (h *APIHandler) handleLoopsForWallet(c *gin.Context) {
	tenantID := c.Param("tenant")
	wallet := models.WalletID(c.Param("wallet"))
	c.JSON(http.StatusOK, gin.H{"loops": h.orchestrator.LoopsForWallet(tenantID, wallet)})
}

// GET /api/v1/tenants/:tenant/loops
func (h *APIHandler) handleActiveLoops(c *gin.Context) {
	tenantID := c.Param("tenant")
	c.JSON(http.StatusOK, gin.H{"loops": h.orchestrator.ActiveLoops(tenantID)})
}

type itemRequest struct {
	Wallet string `json:"wallet" binding:"required"`
	Item   string `json:"item" binding:"required"`
}

// POST /api/v1/tenants/:tenant/nfts
func (h *APIHandler) handleAddNFT(c *gin.Context) {
	tenantID := c.Param("tenant")
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	added, err := h.orchestrator.AddNFT(c.Request.Context(), tenantID, models.WalletID(req.Wallet), models.ItemID(req.Item))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loopsAdded": added})
}

// DELETE /api/v1/tenants/:tenant/nfts
func (h *APIHandler) handleRemoveNFT(c *gin.Context) {
	tenantID := c.Param("tenant")
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	removed, err := h.orchestrator.RemoveNFT(c.Request.Context(), tenantID, models.WalletID(req.Wallet), models.ItemID(req.Item))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loopsRemoved": removed})
}

// POST /api/v1/tenants/:tenant/wants
func (h *APIHandler) handleAddWant(c *gin.Context) {
	tenantID := c.Param("tenant")
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	added, err := h.orchestrator.AddWant(c.Request.Context(), tenantID, models.WalletID(req.Wallet), models.ItemID(req.Item))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loopsAdded": added})
}

// DELETE /api/v1/tenants/:tenant/wants
func (h *APIHandler) handleRemoveWant(c *gin.Context) {
	tenantID := c.Param("tenant")
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	removed, err := h.orchestrator.RemoveWant(c.Request.Context(), tenantID, models.WalletID(req.Wallet), models.ItemID(req.Item))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loopsRemoved": removed})
}

// POST /api/v1/tenants/:tenant/rejections
func (h *APIHandler) handleAddRejection(c *gin.Context) {
	tenantID := c.Param("tenant")
	var req struct {
		Wallet string `json:"wallet" binding:"required"`
		Kind   string `json:"kind" binding:"required"` // "item" or "peer"
		Target string `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind := models.RejectItem
	if req.Kind == "peer" {
		kind = models.RejectPeer
	}
	if err := h.orchestrator.AddRejection(c.Request.Context(), tenantID, models.WalletID(req.Wallet), kind, req.Target); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

// POST /api/v1/tenants/:tenant/loops/:loop/approve
func (h *APIHandler) handleMarkApproved(c *gin.Context) {
	h.transitionLoop(c, h.orchestrator.MarkApproved)
}

// POST /api/v1/tenants/:tenant/loops/:loop/execute
func (h *APIHandler) handleMarkExecuting(c *gin.Context) {
	h.transitionLoop(c, h.orchestrator.MarkExecuting)
}

// POST /api/v1/tenants/:tenant/loops/:loop/complete
func (h *APIHandler) handleMarkCompleted(c *gin.Context) {
	h.transitionLoop(c, h.orchestrator.MarkCompleted)
}

// POST /api/v1/tenants/:tenant/loops/:loop/cancel
func (h *APIHandler) handleCancel(c *gin.Context) {
	tenantID := c.Param("tenant")
	loopID := c.Param("loop")
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	loop, err := h.orchestrator.Cancel(tenantID, loopID, req.Reason)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loop": loop})
}

func (h *APIHandler) transitionLoop(c *gin.Context, fn func(tenantID, loopID string) (*models.TradeLoop, error)) {
	tenantID := c.Param("tenant")
	loopID := c.Param("loop")
	loop, err := fn(tenantID, loopID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"loop": loop})
}

// handleHealth returns engine status for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "trade loop discovery engine",
	})
}
