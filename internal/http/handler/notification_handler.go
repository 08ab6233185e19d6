package handler

import (
	"net/http"

	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/notify"
	"github.com/straye-as/cultivation-api/internal/repository"
	"github.com/straye-as/cultivation-api/internal/service"
	"go.uber.org/zap"
)

// validNotificationTypes contains all valid notification type values
var validNotificationTypes = map[string]bool{
	notify.TypeLossTheft:     true,
	notify.TypeVarianceAlert: true,
	notify.TypeTheftPattern:  true,
}

// NotificationHandler handles HTTP requests for tenant notifications
type NotificationHandler struct {
	notificationService *service.NotificationService
	logger              *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler instance
func NewNotificationHandler(notificationService *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
	}
}

// List godoc
// @Summary List notifications
// @Description Get paginated list of compliance notifications for the tenant
// @Tags Notifications
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Items per page (max 200)" default(20)
// @Param unreadOnly query bool false "Filter to show only unread notifications" default(false)
// @Param type query string false "Filter by notification type" Enums(loss_theft_reported, variance_alert, theft_pattern)
// @Param severity query string false "Filter by severity" Enums(low, medium, high, urgent)
// @Param entityId query string false "Filter by related record" format(uuid)
// @Success 200 {object} domain.PaginatedResponse{data=[]domain.NotificationDTO}
// @Failure 400 {object} domain.APIError
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	notificationType := r.URL.Query().Get("type")
	if notificationType != "" && !validNotificationTypes[notificationType] {
		respondWithError(w, http.StatusBadRequest, "invalid notification type: must be one of loss_theft_reported, variance_alert, theft_pattern")
		return
	}

	entityID, ok := parseOptionalUUID(w, r, "entityId")
	if !ok {
		return
	}

	filters := repository.NotificationFilters{
		UnreadOnly: parseBool(r, "unreadOnly"),
		Type:       notificationType,
		Severity:   domain.Severity(r.URL.Query().Get("severity")),
		EntityID:   entityID,
	}
	result, err := h.notificationService.List(r.Context(), filters, parsePagination(r))
	if err != nil {
		respondError(w, h.logger, err, "list notifications")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetUnreadCount godoc
// @Summary Get unread notification count
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]int64
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications/count [get]
func (h *NotificationHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.notificationService.CountUnread(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "get unread count")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// MarkAsRead godoc
// @Summary Mark notification as read
// @Tags Notifications
// @Param id path string true "Notification ID" format(uuid)
// @Success 204
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications/{id}/read [put]
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "notification")
	if !ok {
		return
	}
	if err := h.notificationService.MarkAsRead(r.Context(), id); err != nil {
		respondError(w, h.logger, err, "mark notification as read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead godoc
// @Summary Mark all notifications as read
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]int64
// @Failure 403 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /notifications/read-all [put]
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notificationService.MarkAllRead(r.Context())
	if err != nil {
		respondError(w, h.logger, err, "mark notifications as read")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
