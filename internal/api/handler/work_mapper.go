package handler

import (
	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

// --- Domain → Response ---

func toWorkResponse(w *domain.Work) workResponse {
	return workResponse{
		ID:             w.ID,
		Number:         w.Number,
		RequesterID:    w.RequesterID,
		CreatorID:      w.CreatorID,
		PlanID:         w.PlanID,
		Description:    w.Description,
		Amount:         w.Amount,
		PaymentURL:     w.PaymentURL,
		Status:         string(w.Status),
		HasDeliverable: w.HasDeliverable(),
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		DeliveredAt:    w.DeliveredAt,
		RejectedAt:     w.RejectedAt,
		PaidAt:         w.PaidAt,
	}
}

func toUserSummaryResponse(s domain.UserSummary) userSummaryResponse {
	return userSummaryResponse{
		ID:          s.ID,
		Handle:      s.Handle,
		DisplayName: s.DisplayName,
		AvatarURL:   s.AvatarURL,
	}
}

func toWorkListResponse(items []ports.WorkListItem) []workListItemResponse {
	out := make([]workListItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, workListItemResponse{
			workResponse: toWorkResponse(it.Work),
			Counterpart:  toUserSummaryResponse(it.Counterpart),
		})
	}
	return out
}

func toDeliveryResponse(r *ports.DeliveryResult) deliveryResponse {
	resp := deliveryResponse{Work: toWorkResponse(r.Work)}
	if r.Link.URL != "" {
		expires := r.Link.ExpiresAt
		resp.DownloadURL = r.Link.URL
		resp.ExpiresAt = &expires
	}
	return resp
}

func toUploadTicketResponse(t *ports.UploadTicket) uploadTicketResponse {
	return uploadTicketResponse{Key: t.Key, UploadURL: t.URL, ExpiresAt: t.ExpiresAt}
}
