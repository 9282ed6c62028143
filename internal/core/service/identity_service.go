package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

// IdentityService resolves external identities and issues session tokens.
type IdentityService struct {
	repo           ports.UserRepository
	sessionSecret  string
	identitySecret string
	tokenTTL       time.Duration
	logger         zerolog.Logger
}

func NewIdentityService(repo ports.UserRepository, sessionSecret, identitySecret string, tokenTTL time.Duration, logger zerolog.Logger) *IdentityService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &IdentityService{
		repo:           repo,
		sessionSecret:  sessionSecret,
		identitySecret: identitySecret,
		tokenTTL:       tokenTTL,
		logger:         logger,
	}
}

// identityClaims is the assertion posted by the identity gateway after a
// successful provider login. Subject carries the provider's user id.
type identityClaims struct {
	Handle  string `json:"handle"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// ResolveOrCreate is idempotent on ExternalID: the first call creates the
// user, later calls refresh handle, name and avatar.
func (s *IdentityService) ResolveOrCreate(ctx context.Context, id ports.ExternalIdentity) (*domain.User, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(id.Handle), "@")
	if id.ExternalID == "" || handle == "" {
		return nil, domain.NewValidationError("external id and handle are required")
	}
	name := strings.TrimSpace(id.DisplayName)
	if name == "" {
		name = handle
	}

	now := time.Now().UTC()
	user, err := s.repo.UpsertByExternalID(ctx, &domain.User{
		ID:          uuid.NewString(),
		ExternalID:  id.ExternalID,
		Handle:      handle,
		DisplayName: name,
		AvatarURL:   strings.TrimSpace(id.AvatarURL),
		Status:      domain.UserUnavailable,
		Plans:       []domain.PricePlan{},
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *IdentityService) Login(ctx context.Context, assertion string) (string, *domain.User, error) {
	if assertion == "" {
		return "", nil, domain.ErrInvalidToken
	}

	claims := &identityClaims{}
	_, err := jwt.ParseWithClaims(assertion, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.identitySecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		s.logger.Debug().Err(err).Msg("identity assertion rejected")
		return "", nil, domain.ErrInvalidToken
	}

	user, err := s.ResolveOrCreate(ctx, ports.ExternalIdentity{
		ExternalID:  claims.Subject,
		Handle:      claims.Handle,
		DisplayName: claims.Name,
		AvatarURL:   claims.Picture,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return "", nil, domain.ErrInvalidToken
		}
		return "", nil, err
	}

	token, err := s.generateToken(user)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Str("handle", user.Handle).Msg("user logged in")
	return token, user, nil
}

func (s *IdentityService) generateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    user.ID,
		"handle": user.Handle,
		"iat":    now.Unix(),
		"exp":    now.Add(s.tokenTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.sessionSecret))
}
