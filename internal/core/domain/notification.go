package domain

import "time"

// NotificationType classifies lifecycle events.
type NotificationType string

const (
	NotificationNewRequest    NotificationType = "new_request"
	NotificationStatusChanged NotificationType = "status_changed"
)

// Notification is an append-only lifecycle event addressed to one user.
type Notification struct {
	ID          string           `json:"id" bson:"_id"`
	RecipientID string           `json:"recipient_id" bson:"recipient_id"`
	WorkID      string           `json:"work_id" bson:"work_id"`
	WorkNumber  int64            `json:"work_number" bson:"work_number"`
	Type        NotificationType `json:"type" bson:"type"`
	Message     string           `json:"message" bson:"message"`
	Read        bool             `json:"is_read" bson:"read"`
	CreatedAt   time.Time        `json:"created_at" bson:"created_at"`
	ReadAt      *time.Time       `json:"read_at,omitempty" bson:"read_at,omitempty"`
}

var statusMessages = map[WorkStatus]string{
	WorkDelivered: "Your request has been delivered.",
	WorkRejected:  "Your request was rejected.",
	WorkPaid:      "Payment for the delivered work was confirmed.",
}

// NewWorkNotification builds the event for a work change caused by actor.
// The recipient is always the actor's counterpart.
func NewWorkNotification(id string, w *Work, actor Party, typ NotificationType, at time.Time) *Notification {
	msg := "You received a new request."
	if typ == NotificationStatusChanged {
		msg = statusMessages[w.Status]
		if msg == "" {
			msg = "The request status was updated."
		}
	}
	return &Notification{
		ID:          id,
		RecipientID: w.PartyID(actor.Counterpart()),
		WorkID:      w.ID,
		WorkNumber:  w.Number,
		Type:        typ,
		Message:     msg,
		CreatedAt:   at,
	}
}
