package ports

import (
	"context"

	"github.com/commissionhub/commission-api/internal/core/domain"
)

// ExternalIdentity is what the identity provider reports on a login callback.
type ExternalIdentity struct {
	ExternalID  string
	Handle      string
	DisplayName string
	AvatarURL   string
}

// IdentityService maps external identities to internal users and issues sessions.
type IdentityService interface {
	ResolveOrCreate(ctx context.Context, id ExternalIdentity) (*domain.User, error)
	// Login verifies a signed identity assertion and returns a session token.
	Login(ctx context.Context, assertion string) (string, *domain.User, error)
}
