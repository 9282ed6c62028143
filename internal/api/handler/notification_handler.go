package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/commissionhub/commission-api/internal/api/metrics"
	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

type NotificationHandler struct {
	service ports.NotificationService
}

func NewNotificationHandler(service ports.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type notificationResponse struct {
	ID         string     `json:"id"`
	WorkID     string     `json:"work_id"`
	WorkNumber int64      `json:"work_number"`
	Type       string     `json:"type"`
	Message    string     `json:"message"`
	Read       bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

type unreadCountResponse struct {
	Count int64 `json:"count"`
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	return notificationResponse{
		ID:         n.ID,
		WorkID:     n.WorkID,
		WorkNumber: n.WorkNumber,
		Type:       string(n.Type),
		Message:    n.Message,
		Read:       n.Read,
		CreatedAt:  n.CreatedAt,
		ReadAt:     n.ReadAt,
	}
}

// List handles GET /v1/notifications.
//
// @Summary      List the caller's notifications, newest first
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Max items (default 50, max 100)"
// @Success      200    {array}   notificationResponse
// @Failure      400    {object}  errorResponse
// @Failure      401    {object}  errorResponse
// @Router       /v1/notifications [get]
func (h *NotificationHandler) List(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}

	items, err := h.service.List(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, out)
}

// UnreadCount handles GET /v1/notifications/unread-count.
//
// @Summary      Count unread notifications
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  unreadCountResponse
// @Failure      401  {object}  errorResponse
// @Router       /v1/notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	n, err := h.service.UnreadCount(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, unreadCountResponse{Count: n})
}

// MarkRead handles POST /v1/notifications/:id/read.
//
// @Summary      Mark a notification as read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Notification ID"
// @Success      200  {object}  notificationResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	n, err := h.service.MarkRead(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return err
	}
	metrics.NotificationsReadTotal.Inc()
	return c.JSON(http.StatusOK, toNotificationResponse(n))
}
