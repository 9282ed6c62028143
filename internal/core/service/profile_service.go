package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

// WarnStatusDowngraded is attached to plan mutations that left the user without an active plan.
const WarnStatusDowngraded = "status changed to unavailable: no active price plan remains"

const maxPlansPerUser = 20

// ProfileService manages profiles, price plans and the availability invariant
// that ties them together.
type ProfileService struct {
	users  ports.UserRepository
	works  ports.WorkRepository
	logger zerolog.Logger
}

func NewProfileService(users ports.UserRepository, works ports.WorkRepository, logger zerolog.Logger) *ProfileService {
	return &ProfileService{users: users, works: works, logger: logger}
}

func (s *ProfileService) GetMe(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.users.FindByID(ctx, userID)
}

// UpdateMe edits the caller's own profile. Moving to an accepting status
// requires an active plan.
func (s *ProfileService) UpdateMe(ctx context.Context, in ports.UpdateProfileInput) (*ports.ProfileResult, error) {
	if in.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	u, err := s.users.Update(ctx, in.UserID, func(u *domain.User) error {
		if in.DisplayName != nil {
			name := strings.TrimSpace(*in.DisplayName)
			if name == "" {
				return domain.NewValidationError("display name is required")
			}
			u.DisplayName = name
		}
		if in.Description != nil {
			u.Description = strings.TrimSpace(*in.Description)
		}
		if in.Status != nil {
			if err := u.SetStatus(*in.Status); err != nil {
				return err
			}
		}
		u.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID).Str("status", string(u.Status)).Msg("profile updated")
	return &ports.ProfileResult{User: u}, nil
}

// GetPublic returns the profile behind handle with hidden plans removed.
func (s *ProfileService) GetPublic(ctx context.Context, handle string) (*domain.User, error) {
	u, err := s.users.FindByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	u.Plans = u.VisiblePlans()
	return u, nil
}

func (s *ProfileService) CreatePlan(ctx context.Context, userID string, in ports.PlanInput) (*ports.ProfileResult, error) {
	return s.mutatePlans(ctx, userID, func(u *domain.User, now time.Time) error {
		if len(u.Plans) >= maxPlansPerUser {
			return domain.NewValidationError("a user may own at most %d price plans", maxPlansPerUser)
		}
		plan := domain.PricePlan{
			ID:        uuid.NewString(),
			UserID:    u.ID,
			CreatedAt: now,
		}
		if err := applyPlanInput(&plan, in, now); err != nil {
			return err
		}
		u.Plans = append(u.Plans, plan)
		return nil
	})
}

// UpdatePlan edits one of the caller's plans. Works created earlier keep
// their own amount snapshot.
func (s *ProfileService) UpdatePlan(ctx context.Context, userID, planID string, in ports.PlanInput) (*ports.ProfileResult, error) {
	return s.mutatePlans(ctx, userID, func(u *domain.User, now time.Time) error {
		plan, ok := u.Plan(planID)
		if !ok {
			return domain.ErrPlanNotFound
		}
		return applyPlanInput(plan, in, now)
	})
}

// DeletePlan removes one of the caller's plans. Existing works are unaffected.
func (s *ProfileService) DeletePlan(ctx context.Context, userID, planID string) (*ports.ProfileResult, error) {
	return s.mutatePlans(ctx, userID, func(u *domain.User, _ time.Time) error {
		if !u.RemovePlan(planID) {
			return domain.ErrPlanNotFound
		}
		return nil
	})
}

// mutatePlans applies fn and re-derives availability inside the same atomic
// update. A downgrade is reported as a warning, not an error.
func (s *ProfileService) mutatePlans(ctx context.Context, userID string, fn func(u *domain.User, now time.Time) error) (*ports.ProfileResult, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	var downgraded bool
	u, err := s.users.Update(ctx, userID, func(u *domain.User) error {
		now := time.Now().UTC()
		if err := fn(u, now); err != nil {
			return err
		}
		downgraded = u.EnforceAvailability()
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ports.ProfileResult{User: u}
	if downgraded {
		res.Warnings = append(res.Warnings, WarnStatusDowngraded)
		s.logger.Info().Str("user_id", u.ID).Msg("status downgraded: no active price plan")
	}
	return res, nil
}

// Stats counts the works a user received and sent, per status.
func (s *ProfileService) Stats(ctx context.Context, handle string) (*ports.UserStats, error) {
	u, err := s.users.FindByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	received, err := s.works.CountByStatus(ctx, domain.PartyCreator, u.ID)
	if err != nil {
		return nil, err
	}
	sent, err := s.works.CountByStatus(ctx, domain.PartyRequester, u.ID)
	if err != nil {
		return nil, err
	}
	return &ports.UserStats{Received: fillStatuses(received), Sent: fillStatuses(sent)}, nil
}

func fillStatuses(counts map[domain.WorkStatus]int64) map[domain.WorkStatus]int64 {
	out := make(map[domain.WorkStatus]int64, len(domain.AllWorkStatuses))
	for _, st := range domain.AllWorkStatuses {
		out[st] = counts[st]
	}
	return out
}

func applyPlanInput(p *domain.PricePlan, in ports.PlanInput, now time.Time) error {
	title := strings.TrimSpace(in.Title)
	desc := strings.TrimSpace(in.Description)
	if title == "" {
		title = desc
	}
	if title == "" {
		return domain.NewValidationError("title is required")
	}
	p.Title = title
	p.Description = desc
	p.Amount = in.Amount
	p.PaymentURL = strings.TrimSpace(in.PaymentURL)
	p.Hidden = in.Hidden
	p.UpdatedAt = now
	return p.Validate()
}
