package api

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/tradeloop-engine/internal/orchestrator"
	"github.com/rawblock/tradeloop-engine/internal/tenant"
)

// APIHandler wires the HTTP surface to the orchestrator and tenant
// registry. wsHub carries process-wide notifications (such as
// tenant_evicted) to /admin/stream clients; per-tenant loops_changed events
// go through handleStream instead.
type APIHandler struct {
	orchestrator *orchestrator.Orchestrator
	registry     *tenant.Registry
	wsHub        *Hub
}

// SetupRouter builds the Gin engine: health and the websocket stream are
// public; discovery, ingest, and lifecycle endpoints require bearer auth
// and are rate-limited.
func SetupRouter(orch *orchestrator.Orchestrator, registry *tenant.Registry, authToken string, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Writer.Header().Set("X-Request-Id", reqID)
		c.Set("requestID", reqID)
		c.Next()
	})

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PUT, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		orchestrator: orch,
		registry:     registry,
		wsHub:        wsHub,
	}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/tenants/:tenant/stream", handler.handleStream)
		// admin/stream carries process-wide notifications (tenant eviction,
		// persistence flushes) rather than any single tenant's loop changes.
		pub.GET("/admin/stream", wsHub.Subscribe)
	}

	auth := r.Group("/api/v1/tenants/:tenant")
	auth.Use(AuthMiddleware(authToken))
	auth.Use(NewRateLimiter(120, 20).Middleware())
	{
		auth.POST("/discover", handler.handleDiscover)
		auth.GET("/loops", handler.handleActiveLoops)
		auth.GET("/wallets/:wallet/loops", handler.handleLoopsForWallet)

		auth.POST("/nfts", handler.handleAddNFT)
		auth.DELETE("/nfts", handler.handleRemoveNFT)
		auth.POST("/wants", handler.handleAddWant)
		auth.DELETE("/wants", handler.handleRemoveWant)
		auth.POST("/rejections", handler.handleAddRejection)

		auth.POST("/loops/:loop/approve", handler.handleMarkApproved)
		auth.POST("/loops/:loop/execute", handler.handleMarkExecuting)
		auth.POST("/loops/:loop/complete", handler.handleMarkCompleted)
		auth.POST("/loops/:loop/cancel", handler.handleCancel)
	}

	return r
}

// handleStream upgrades to a websocket connection and relays
// loops_changed events for the tenant named in the path until the client
// disconnects.
func (h *APIHandler) handleStream(c *gin.Context) {
	tenantID := c.Param("tenant")
	t := h.registry.Get(tenantID)
	sub := t.Delta.Subscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for event := range sub {
		payload, err := json.Marshal(gin.H{"type": "loops_changed", "event": event})
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(1, payload); err != nil {
			return
		}
	}
}
