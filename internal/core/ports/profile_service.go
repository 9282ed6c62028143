package ports

import (
	"context"

	"github.com/commissionhub/commission-api/internal/core/domain"
)

// UpdateProfileInput carries optional profile changes; nil fields are left untouched.
type UpdateProfileInput struct {
	UserID      string
	DisplayName *string
	Description *string
	Status      *domain.UserStatus
}

// PlanInput carries the editable fields of a price plan.
type PlanInput struct {
	Title       string
	Description string
	Amount      int64
	PaymentURL  string
	Hidden      bool
}

// ProfileResult is returned by profile mutations. Warnings report non-fatal side
// effects such as an automatic status downgrade.
type ProfileResult struct {
	User     *domain.User
	Warnings []string
}

// UserStats counts a user's works per status on each side.
type UserStats struct {
	Received map[domain.WorkStatus]int64
	Sent     map[domain.WorkStatus]int64
}

// ProfileService manages user profiles and price plans.
type ProfileService interface {
	GetMe(ctx context.Context, userID string) (*domain.User, error)
	UpdateMe(ctx context.Context, in UpdateProfileInput) (*ProfileResult, error)
	// GetPublic returns the profile behind handle with hidden plans removed.
	GetPublic(ctx context.Context, handle string) (*domain.User, error)
	CreatePlan(ctx context.Context, userID string, in PlanInput) (*ProfileResult, error)
	UpdatePlan(ctx context.Context, userID, planID string, in PlanInput) (*ProfileResult, error)
	DeletePlan(ctx context.Context, userID, planID string) (*ProfileResult, error)
	Stats(ctx context.Context, handle string) (*UserStats, error)
}
