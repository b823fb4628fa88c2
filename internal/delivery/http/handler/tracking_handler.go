package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fleetwatch/internal/alert"
	"fleetwatch/internal/delivery/ws"
	"fleetwatch/internal/domain/fleet"
	"fleetwatch/internal/geofence"
	"fleetwatch/internal/mapview"
	"fleetwatch/internal/middleware"
	"fleetwatch/internal/notification"
	"fleetwatch/internal/tracking"
	appErrors "fleetwatch/pkg/errors"
	"fleetwatch/pkg/utils"
)

type TrackingHandler struct {
	ctrl *tracking.Controller
	hub  *ws.Hub
}

func NewTrackingHandler(ctrl *tracking.Controller, hub *ws.Hub) *TrackingHandler {
	return &TrackingHandler{ctrl: ctrl, hub: hub}
}

func (h *TrackingHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/devices", h.ListDevices)
	router.GET("/devices/:id", h.GetDevice)
	router.GET("/positions", h.ListPositions)
	router.GET("/markers", h.ListMarkers)
	router.GET("/geofences", h.ListGeofences)

	router.GET("/viewport", h.GetViewport)
	router.POST("/focus/:id", h.Focus)
	router.DELETE("/focus", h.ClearFocus)
	router.POST("/map/click", h.Click)

	router.GET("/events/latest", h.LatestEvent)
	router.GET("/alert", h.GetAlert)
	router.POST("/alert/dismiss", h.DismissAlert)

	notifications := router.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.POST("/read", h.MarkAllRead)
		notifications.DELETE("", h.ClearNotifications)
	}

	if h.hub != nil {
		router.GET("/ws", h.Stream)
	}
}

type DeviceDetail struct {
	Device   fleet.Record `json:"device"`
	Position fleet.Record `json:"position,omitempty"`
}

type ClickRequest struct {
	DeviceID string `json:"deviceId"`
}

type NotificationList struct {
	Filter  notification.Filter  `json:"filter"`
	Unread  int                  `json:"unread"`
	Entries []notification.Entry `json:"entries"`
}

func (h *TrackingHandler) ListDevices(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Devices retrieved successfully", h.ctrl.View().Devices)
}

func (h *TrackingHandler) GetDevice(c *gin.Context) {
	snap := h.ctrl.Snapshot()
	id := c.Param("id")

	device, ok := snap.DeviceRecord(id)
	if !ok {
		utils.AppErrorResponse(c, appErrors.NotFound("Device not found", fleet.ErrUnknownDevice))
		return
	}
	detail := DeviceDetail{Device: device}
	if p, ok := snap.PositionRecord(id); ok {
		detail.Position = p
	}

	utils.SuccessResponse(c, http.StatusOK, "Device retrieved successfully", detail)
}

func (h *TrackingHandler) ListPositions(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Positions retrieved successfully", h.ctrl.View().Positions)
}

func (h *TrackingHandler) ListMarkers(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Markers retrieved successfully", h.ctrl.Markers())
}

func (h *TrackingHandler) ListGeofences(c *gin.Context) {
	fences := h.ctrl.Renderer().Geofences()
	if fences == nil {
		fences = []geofence.Geofence{}
	}
	utils.SuccessResponse(c, http.StatusOK, "Geofences retrieved successfully", fences)
}

func (h *TrackingHandler) GetViewport(c *gin.Context) {
	r := h.ctrl.Renderer()
	utils.SuccessResponse(c, http.StatusOK, "Viewport retrieved successfully", gin.H{
		"viewport": r.Viewport(),
		"focused":  r.Focused(),
	})
}

func (h *TrackingHandler) Focus(c *gin.Context) {
	vp, err := h.ctrl.Focus(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device focused", vp)
}

func (h *TrackingHandler) ClearFocus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Focus cleared", h.ctrl.ClearFocus())
}

func (h *TrackingHandler) Click(c *gin.Context) {
	var req ClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	vp, err := h.ctrl.Click(mapview.Click{DeviceID: req.DeviceID})
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Click handled", vp)
}

func (h *TrackingHandler) LatestEvent(c *gin.Context) {
	entry, ok := h.ctrl.LatestEvent()
	if !ok {
		utils.AppErrorResponse(c, appErrors.NotFound("No event received yet", nil))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Latest event retrieved successfully", entry)
}

func (h *TrackingHandler) GetAlert(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Alert state retrieved successfully", h.ctrl.Alert())
}

func (h *TrackingHandler) DismissAlert(c *gin.Context) {
	if err := h.ctrl.DismissAlert(); err != nil {
		h.fail(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Alert dismissed", h.ctrl.Alert())
}

func (h *TrackingHandler) ListNotifications(c *gin.Context) {
	mode, err := notification.ParseFilter(c.Query("filter"))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Notifications retrieved successfully", NotificationList{
		Filter:  mode,
		Unread:  h.ctrl.UnreadCount(),
		Entries: h.ctrl.Notifications(mode),
	})
}

func (h *TrackingHandler) MarkAllRead(c *gin.Context) {
	changed := h.ctrl.MarkAllRead()
	utils.SuccessResponse(c, http.StatusOK, "Notifications marked as read", gin.H{"updated": changed})
}

func (h *TrackingHandler) ClearNotifications(c *gin.Context) {
	h.ctrl.ClearNotifications()
	utils.SuccessResponse(c, http.StatusOK, "Notifications cleared", nil)
}

func (h *TrackingHandler) Stream(c *gin.Context) {
	if err := h.hub.ServeWS(c.Writer, c.Request); err != nil {
		middleware.RequestLogger(c, "ws").Warn("WebSocket upgrade failed", zap.Error(err))
	}
}

// fail maps domain errors onto API errors.
func (h *TrackingHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, fleet.ErrUnknownDevice):
		utils.AppErrorResponse(c, appErrors.NotFound("Device not found", err))
	case errors.Is(err, alert.ErrNoActiveAlert):
		utils.AppErrorResponse(c, appErrors.Conflict("No active alert", err))
	case errors.Is(err, notification.ErrInvalidFilter):
		utils.AppErrorResponse(c, appErrors.InvalidInput("Filter must be all, read or unread", err))
	default:
		utils.AppErrorResponse(c, err)
	}
}
