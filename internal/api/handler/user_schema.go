package handler

import "time"

// errorResponse documents the envelope rendered by the central error handler.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request types ---

type updateMeRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Status      *string `json:"status" validate:"omitempty,oneof=available available_hidden unavailable"`
}

type planRequest struct {
	Title       string `json:"title" validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
	Amount      int64  `json:"amount" validate:"required"`
	PaymentURL  string `json:"payment_url" validate:"omitempty,url"`
	Hidden      bool   `json:"is_hidden"`
}

// --- Response types ---

type planResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	PaymentURL  string    `json:"payment_url,omitempty"`
	Hidden      bool      `json:"is_hidden"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type userResponse struct {
	ID          string         `json:"id"`
	Handle      string         `json:"handle"`
	DisplayName string         `json:"display_name"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	Plans       []planResponse `json:"plans"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type profileResponse struct {
	User     userResponse `json:"user"`
	Warnings []string     `json:"warnings"`
}

type statsResponse struct {
	Received map[string]int64 `json:"received"`
	Sent     map[string]int64 `json:"sent"`
}
