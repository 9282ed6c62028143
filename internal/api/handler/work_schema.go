package handler

import "time"

// --- Request types ---

type createWorkRequest struct {
	CreatorID   string `json:"creator_id" validate:"required"`
	PlanID      string `json:"plan_id" validate:"required"`
	Description string `json:"description" validate:"required,max=5000"`
}

type uploadURLRequest struct {
	FileName string `json:"file_name" validate:"required,max=255"`
}

type completeUploadRequest struct {
	Key string `json:"key" validate:"required"`
}

// --- Response types ---

type userSummaryResponse struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type workResponse struct {
	ID             string     `json:"id"`
	Number         int64      `json:"number"`
	RequesterID    string     `json:"requester_id"`
	CreatorID      string     `json:"creator_id"`
	PlanID         string     `json:"plan_id"`
	Description    string     `json:"description"`
	Amount         int64      `json:"amount"`
	PaymentURL     string     `json:"payment_url,omitempty"`
	Status         string     `json:"status"`
	HasDeliverable bool       `json:"has_deliverable"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

type workListItemResponse struct {
	workResponse
	Counterpart userSummaryResponse `json:"counterpart"`
}

type downloadLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type uploadTicketResponse struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type deliveryResponse struct {
	Work        workResponse `json:"work"`
	DownloadURL string       `json:"download_url,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}
