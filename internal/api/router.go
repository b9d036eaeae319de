package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mewayz-notifications/internal/config"
	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/notification"
	"mewayz-notifications/internal/realtime"
	"mewayz-notifications/internal/store"
)

// Deps are the collaborators the HTTP layer talks to.
type Deps struct {
	Service  *notification.Service
	Registry *realtime.Registry
	Store    store.Store
}

func NewRouter(deps Deps, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(deps, logger, cfg)
	api := r.Group(cfg.API.BasePath)
	{
		// Notifications
		api.POST("/notifications", h.CreateNotification)
		api.POST("/notifications/bulk", h.SendBulk)
		api.GET("/notifications/user/:user_id", h.GetNotificationsByUserID)
		api.GET("/notifications/user/:user_id/stats", h.GetStats)
		api.POST("/notifications/user/:user_id/read-all", h.MarkAllRead)
		api.POST("/notifications/:id/read", h.MarkRead)
		api.POST("/notifications/:id/click", h.MarkClicked)
		api.POST("/notifications/:id/retry", h.RetryNotification)

		// Contact points
		api.POST("/contacts", h.RegisterContact)

		// Realtime
		api.GET("/connections/:user_id", h.GetConnectionStatus)
		api.GET("/ws/:user_id", h.ServeWebSocket)
	}

	r.GET("/health", h.Health)
	return r
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Browser clients connect from the dashboard origin; authentication
		// happens upstream of this service.
		CheckOrigin: func(*http.Request) bool { return true },
	}
}
