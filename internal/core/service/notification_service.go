package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 100
)

type NotificationService struct {
	repo   ports.NotificationRepository
	logger zerolog.Logger
}

func NewNotificationService(repo ports.NotificationRepository, logger zerolog.Logger) *NotificationService {
	return &NotificationService{repo: repo, logger: logger}
}

// List returns the newest notifications first. limit is capped at 100.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	return s.repo.ListByRecipient(ctx, userID, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.ErrUnauthenticated
	}
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead acknowledges a notification. Only its recipient may do so; marking
// an already read notification again is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	n, err := s.repo.MarkRead(ctx, id, userID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("notification_id", id).Str("user_id", userID).Msg("notification read")
	return n, nil
}
