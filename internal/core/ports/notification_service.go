package ports

import (
	"context"

	"github.com/commissionhub/commission-api/internal/core/domain"
)

// NotificationService exposes a user's notification log.
type NotificationService interface {
	List(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error)
}
