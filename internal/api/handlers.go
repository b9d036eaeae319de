package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mewayz-notifications/internal/config"
	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
	"mewayz-notifications/internal/notification"
	"mewayz-notifications/internal/realtime"
	"mewayz-notifications/internal/store"
)

type Handler struct {
	svc      *notification.Service
	registry *realtime.Registry
	store    store.Store
	logger   *logging.Logger
	upgrader websocket.Upgrader
	ws       wsSettings
}

type wsSettings struct {
	readLimit int64
	pongWait  time.Duration
}

func NewHandler(deps Deps, logger *logging.Logger, cfg config.Config) *Handler {
	pongWait := 2 * cfg.WebSocket.PingInterval
	if pongWait <= 0 {
		pongWait = time.Minute
	}
	return &Handler{
		svc:      deps.Service,
		registry: deps.Registry,
		store:    deps.Store,
		logger:   logger,
		upgrader: newUpgrader(),
		ws:       wsSettings{readLimit: cfg.WebSocket.ReadLimit, pongWait: pongWait},
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case models.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, notification.ErrNothingToRetry):
		return http.StatusConflict
	case errors.Is(err, notification.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) CreateNotification(c *gin.Context) {
	var req models.NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for notification: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	params, err := req.Params()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.CreateAndSend(c.Request.Context(), params)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	switch {
	case !res.Success:
		c.JSON(http.StatusInternalServerError, res)
	case res.Queued:
		c.JSON(http.StatusAccepted, res)
	default:
		c.JSON(http.StatusCreated, res)
	}
}

func (h *Handler) SendBulk(c *gin.Context) {
	var req models.BulkNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for bulk notification: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	params, err := req.Params()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out := h.svc.SendBulk(c.Request.Context(), req.UserIDs, params)
	h.logger.Infof("Bulk notification: %d sent, %d failed", out.Sent, out.Failed)
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetNotificationsByUserID(c *gin.Context) {
	userID := c.Param("user_id")
	var q notification.HistoryQuery

	if s := c.Query("type"); s != "" {
		t, err := models.ParseType(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q.Type = t
	}
	if s := c.Query("channel"); s != "" {
		ch, err := models.ParseChannel(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q.Channel = ch
	}
	var err error
	if q.UnreadOnly, err = queryBool(c, "unread"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unread"})
		return
	}
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}
	if q.Offset, err = queryInt(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
		return
	}

	page, err := h.svc.History(c.Request.Context(), userID, q)
	if err != nil {
		h.logger.Errorf("Failed to get notifications for user_id %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notifications"})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetStats(c *gin.Context) {
	userID := c.Param("user_id")
	st, err := h.svc.Stats(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("Failed to compute stats for user_id %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, st)
}

type ownerRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) MarkRead(c *gin.Context) {
	h.updateFlag(c, "read", h.svc.MarkRead)
}

func (h *Handler) MarkClicked(c *gin.Context) {
	h.updateFlag(c, "clicked", h.svc.MarkClicked)
}

func (h *Handler) updateFlag(c *gin.Context, flag string, apply func(ctx context.Context, userID, id string) error) {
	id := c.Param("id")
	var req ownerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := apply(c.Request.Context(), req.UserID, id); err != nil {
		if status := statusFor(err); status != http.StatusInternalServerError {
			c.JSON(status, gin.H{"error": "Notification not found"})
			return
		}
		h.logger.Errorf("Failed to mark notification %s %s: %v", id, flag, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "notification_id": id, flag: true})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	userID := c.Param("user_id")
	changed, err := h.svc.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("Failed to mark all read for user_id %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": changed})
}

func (h *Handler) RetryNotification(c *gin.Context) {
	id := c.Param("id")
	var req ownerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Retry(c.Request.Context(), req.UserID, id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !res.Success {
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	h.logger.Infof("Retried notification %s", id)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RegisterContact(c *gin.Context) {
	var req models.ContactPointCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for contact point: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	channel, err := models.ParseChannel(req.Channel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	address := strings.TrimSpace(req.Address)
	switch channel {
	case models.ChannelRealtime, models.ChannelInApp:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Channel " + string(channel) + " does not take an address"})
		return
	case models.ChannelEmail:
		if !strings.Contains(address, "@") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
			return
		}
	case models.ChannelSMS:
		if !strings.HasPrefix(address, "+") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number must start with +"})
			return
		}
	}

	now := time.Now().UTC()
	cp := models.ContactPoint{UserID: req.UserID, Channel: channel, Address: address, CreatedAt: now, UpdatedAt: now}
	if err := h.store.UpsertContactPoint(c.Request.Context(), cp); err != nil {
		h.logger.Errorf("Failed to register contact point: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register contact point"})
		return
	}
	h.logger.Infof("Registered %s contact for user %s", channel, req.UserID)
	c.JSON(http.StatusCreated, cp)
}

func (h *Handler) GetConnectionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ConnectionStatus(c.Param("user_id")))
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Errorf("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.registry.CountTotal(),
		"queued":      h.svc.QueueLen(),
	})
}

func queryInt(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func queryBool(c *gin.Context, key string) (bool, error) {
	s := c.Query(key)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
