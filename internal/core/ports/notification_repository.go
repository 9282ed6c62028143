package ports

import (
	"context"
	"time"

	"github.com/commissionhub/commission-api/internal/core/domain"
)

// NotificationRepository reads and acknowledges notifications.
// Notifications are written by WorkRepository alongside the transition that causes them.
type NotificationRepository interface {
	ListByRecipient(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	// MarkRead returns domain.ErrNotificationNotFound unless userID is the recipient.
	MarkRead(ctx context.Context, id, userID string, at time.Time) (*domain.Notification, error)
}
