package ports

import (
	"context"

	"github.com/commissionhub/commission-api/internal/core/domain"
)

// UserUpdateFn mutates a loaded user. Returning an error aborts the update.
type UserUpdateFn func(u *domain.User) error

// UserRepository defines persistence operations for users and their price plans.
type UserRepository interface {
	// UpsertByExternalID creates u when no user carries u.ExternalID yet, otherwise
	// refreshes handle, display name and avatar. It returns the stored user.
	UpsertByExternalID(ctx context.Context, u *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// FindByHandle matches the handle case-insensitively.
	FindByHandle(ctx context.Context, handle string) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
	// Update loads the user, applies fn and persists the result (profile fields,
	// status and the full plan set) as one atomic unit.
	Update(ctx context.Context, id string, fn UserUpdateFn) (*domain.User, error)
}
