package ports

import (
	"context"
	"time"

	"github.com/commissionhub/commission-api/internal/core/domain"
)

// WorkTransition is a conditional status change. It applies only while the work
// is still in From and ActorID is the user on the Actor side.
type WorkTransition struct {
	WorkID  string
	From    domain.WorkStatus
	To      domain.WorkStatus
	Actor   domain.Party
	ActorID string
	FileRef string
	At      time.Time
}

// WorkRepository defines persistence operations for works.
type WorkRepository interface {
	// Create assigns the next sequential number to w (and n.WorkNumber) and stores
	// the work together with its notification.
	Create(ctx context.Context, w *domain.Work, n *domain.Notification) error
	FindByID(ctx context.Context, id string) (*domain.Work, error)
	// ListByParty returns the works where userID is on the given side, newest first.
	ListByParty(ctx context.Context, party domain.Party, userID string) ([]*domain.Work, error)
	// Transition applies t and stores n in one transaction. It returns
	// domain.ErrTransitionConflict when the precondition no longer holds.
	Transition(ctx context.Context, t WorkTransition, n *domain.Notification) (*domain.Work, error)
	CountByStatus(ctx context.Context, party domain.Party, userID string) (map[domain.WorkStatus]int64, error)
}
