package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationService reads the in-app notifications of a tenant. They are
// written by the notify dispatcher's database sink.
type NotificationService struct {
	notificationRepo *repository.NotificationRepository
	authz            auth.Authorizer
	logger           *zap.Logger
	now              func() time.Time
}

// NewNotificationService creates a new NotificationService instance
func NewNotificationService(db *gorm.DB, authz auth.Authorizer, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		notificationRepo: repository.NewNotificationRepository(db),
		authz:            authz,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// List returns a page of notifications, newest first
func (s *NotificationService) List(ctx context.Context, filters repository.NotificationFilters, page repository.Pagination) (*domain.PaginatedResponse, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionAlertsRead); err != nil {
		return nil, err
	}
	if filters.Severity != "" && !filters.Severity.IsValid() {
		return nil, NewValidationError("severity", "Must be one of: low medium high urgent")
	}
	page = page.Normalize()
	notifications, total, err := s.notificationRepo.List(ctx, filters, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	dtos := make([]domain.NotificationDTO, len(notifications))
	for i := range notifications {
		dtos[i] = mapper.ToNotificationDTO(&notifications[i])
	}
	return domain.NewPaginatedResponse(dtos, total, page.Page, page.PageSize), nil
}

// CountUnread returns the number of unread notifications
func (s *NotificationService) CountUnread(ctx context.Context) (int64, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionAlertsRead); err != nil {
		return 0, err
	}
	return s.notificationRepo.CountUnread(ctx)
}

// MarkAsRead marks one notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, domain.PermissionAlertsRead); err != nil {
		return err
	}
	found, err := s.notificationRepo.MarkAsRead(ctx, id, s.now())
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if !found {
		return fmt.Errorf("notification: %w", ErrNotFound)
	}
	return nil
}

// MarkAllRead marks every unread notification of the tenant as read
func (s *NotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionAlertsRead); err != nil {
		return 0, err
	}
	n, err := s.notificationRepo.MarkAllRead(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	tenantID, _ := auth.RequireTenant(ctx)
	s.logger.Debug("notifications marked as read", zap.String("tenantID", tenantID.String()), zap.Int64("count", n))
	return n, nil
}
