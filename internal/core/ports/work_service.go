package ports

import (
	"context"
	"io"
	"time"

	"github.com/commissionhub/commission-api/internal/core/domain"
)

// CreateWorkInput carries all data needed to request a new work.
type CreateWorkInput struct {
	RequesterID    string
	CreatorID      string
	PlanID         string
	Description    string
	IdempotencyKey string
}

// CreateWorkResult is returned after creating a work.
type CreateWorkResult struct {
	Work *domain.Work
	// AlreadyExisted is true when the Idempotency-Key matched an earlier request.
	AlreadyExisted bool
}

// UploadDeliverableInput carries the file a creator delivers.
type UploadDeliverableInput struct {
	WorkID      string
	ActorID     string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// DownloadLink is a time-limited retrieval URL for a deliverable.
type DownloadLink struct {
	URL       string
	ExpiresAt time.Time
}

// UploadTicket lets a creator upload a deliverable straight to storage.
// The work is delivered only once the upload is confirmed under Key.
type UploadTicket struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

// DeliveryResult is returned after a successful upload and delivery.
type DeliveryResult struct {
	Work *domain.Work
	Link DownloadLink
}

// WorkListItem pairs a work with the other party's public identity.
type WorkListItem struct {
	Work        *domain.Work
	Counterpart domain.UserSummary
}

// WorkService is the work lifecycle engine. Every status change goes through it.
type WorkService interface {
	Create(ctx context.Context, in CreateWorkInput) (*CreateWorkResult, error)
	Get(ctx context.Context, workID, actorID string) (*domain.Work, error)
	ListReceived(ctx context.Context, creatorID string) ([]WorkListItem, error)
	ListSent(ctx context.Context, requesterID string) ([]WorkListItem, error)
	Deliver(ctx context.Context, workID, actorID, fileRef string) (*domain.Work, error)
	UploadDeliverable(ctx context.Context, in UploadDeliverableInput) (*DeliveryResult, error)
	RequestUploadURL(ctx context.Context, workID, actorID, fileName string) (*UploadTicket, error)
	CompleteUpload(ctx context.Context, workID, actorID, key string) (*DeliveryResult, error)
	Reject(ctx context.Context, workID, actorID string) (*domain.Work, error)
	ConfirmPayment(ctx context.Context, workID, actorID string) (*domain.Work, error)
	GetDeliverable(ctx context.Context, workID, actorID string) (*DownloadLink, error)
}
