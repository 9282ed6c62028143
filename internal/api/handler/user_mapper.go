package handler

import (
	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

// --- Request → Service input ---

func toUpdateProfileInput(userID string, req updateMeRequest) ports.UpdateProfileInput {
	in := ports.UpdateProfileInput{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Description: req.Description,
	}
	if req.Status != nil {
		s := domain.UserStatus(*req.Status)
		in.Status = &s
	}
	return in
}

func toPlanInput(req planRequest) ports.PlanInput {
	return ports.PlanInput{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		PaymentURL:  req.PaymentURL,
		Hidden:      req.Hidden,
	}
}

// --- Domain → Response ---

func toUserResponse(u *domain.User) userResponse {
	plans := make([]planResponse, 0, len(u.Plans))
	for _, p := range u.Plans {
		plans = append(plans, planResponse{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Amount:      p.Amount,
			PaymentURL:  p.PaymentURL,
			Hidden:      p.Hidden,
			Active:      p.Active(),
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		})
	}
	return userResponse{
		ID:          u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Description: u.Description,
		Status:      string(u.Status),
		Plans:       plans,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func toProfileResponse(r *ports.ProfileResult) profileResponse {
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return profileResponse{User: toUserResponse(r.User), Warnings: warnings}
}

func toStatsResponse(s *ports.UserStats) statsResponse {
	conv := func(m map[domain.WorkStatus]int64) map[string]int64 {
		out := make(map[string]int64, len(m))
		for k, v := range m {
			out[string(k)] = v
		}
		return out
	}
	return statsResponse{Received: conv(s.Received), Sent: conv(s.Sent)}
}
