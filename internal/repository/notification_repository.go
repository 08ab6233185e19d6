package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
)

// NotificationFilters narrows a notification listing
type NotificationFilters struct {
	UnreadOnly bool
	Type       string
	Severity   domain.Severity
	EntityID   *uuid.UUID
}

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification. The tenant comes from the row so the
// dispatcher can write without a request scope.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) filtered(ctx context.Context, f NotificationFilters) *gorm.DB {
	query := scoped(ctx, r.db, &domain.Notification{})
	if f.UnreadOnly {
		query = query.Where("read = ?", false)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.Severity != "" {
		query = query.Where("severity = ?", f.Severity)
	}
	if f.EntityID != nil {
		query = query.Where("entity_id = ?", *f.EntityID)
	}
	return query
}

// List returns one page of the tenant's notifications, newest first
func (r *NotificationRepository) List(ctx context.Context, f NotificationFilters, page Pagination) ([]domain.Notification, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	var notifications []domain.Notification
	err := r.filtered(ctx, f).
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&notifications).Error
	return notifications, total, err
}

// MarkAsRead flags one unread notification and reports whether it exists in
// the tenant. Marking an already read notification is a no-op.
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	var n int64
	if err := scoped(ctx, r.db, &domain.Notification{}).Where("id = ?", id).Count(&n).Error; err != nil || n == 0 {
		return false, err
	}
	err := scoped(ctx, r.db, &domain.Notification{}).
		Where("id = ? AND read = ?", id, false).
		Updates(map[string]interface{}{"read": true, "read_at": at}).Error
	return true, err
}

// MarkAllRead flags every unread notification of the tenant and returns how
// many changed
func (r *NotificationRepository) MarkAllRead(ctx context.Context, at time.Time) (int64, error) {
	result := scoped(ctx, r.db, &domain.Notification{}).
		Where("read = ?", false).
		Updates(map[string]interface{}{"read": true, "read_at": at})
	return result.RowsAffected, result.Error
}

func (r *NotificationRepository) CountUnread(ctx context.Context) (int64, error) {
	var count int64
	err := r.filtered(ctx, NotificationFilters{UnreadOnly: true}).Count(&count).Error
	return count, err
}
