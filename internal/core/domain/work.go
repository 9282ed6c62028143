package domain

import "time"

// WorkStatus represents the lifecycle state of a commission.
type WorkStatus string

const (
	WorkRequested WorkStatus = "requested"
	WorkDelivered WorkStatus = "delivered"
	WorkRejected  WorkStatus = "rejected"
	WorkPaid      WorkStatus = "paid"
)

// AllWorkStatuses lists every status in lifecycle order.
var AllWorkStatuses = []WorkStatus{WorkRequested, WorkDelivered, WorkRejected, WorkPaid}

// validTransitions defines the allowed state machine transitions.
var validTransitions = map[WorkStatus][]WorkStatus{
	WorkRequested: {WorkDelivered, WorkRejected},
	WorkDelivered: {WorkPaid},
}

// Party identifies one side of a work.
type Party string

const (
	PartyRequester Party = "requester"
	PartyCreator   Party = "creator"
)

// Counterpart returns the other side.
func (p Party) Counterpart() Party {
	if p == PartyCreator {
		return PartyRequester
	}
	return PartyCreator
}

// transitionActors names the only party allowed to move a work into each status.
var transitionActors = map[WorkStatus]Party{
	WorkDelivered: PartyCreator,
	WorkRejected:  PartyCreator,
	WorkPaid:      PartyRequester,
}

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s WorkStatus) CanTransitionTo(next WorkStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s WorkStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s WorkStatus) Valid() bool {
	switch s {
	case WorkRequested, WorkDelivered, WorkRejected, WorkPaid:
		return true
	}
	return false
}

// ActorFor returns the party entitled to move a work into next.
func ActorFor(next WorkStatus) (Party, bool) {
	p, ok := transitionActors[next]
	return p, ok
}

// Work is a commission tracked from request to payment or rejection.
// Amount and PaymentURL are snapshots taken from the plan at creation time.
type Work struct {
	ID          string     `json:"id" bson:"_id"`
	Number      int64      `json:"number" bson:"number"`
	RequesterID string     `json:"requester_id" bson:"requester_id"`
	CreatorID   string     `json:"creator_id" bson:"creator_id"`
	PlanID      string     `json:"plan_id" bson:"plan_id"`
	Description string     `json:"description" bson:"description"`
	Amount      int64      `json:"amount" bson:"amount"`
	PaymentURL  string     `json:"payment_url,omitempty" bson:"payment_url,omitempty"`
	Status      WorkStatus `json:"status" bson:"status"`
	FileRef     string     `json:"-" bson:"file_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty" bson:"rejected_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
}

// PartyOf reports which side of the work userID is on.
func (w *Work) PartyOf(userID string) (Party, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == w.CreatorID:
		return PartyCreator, true
	case userID == w.RequesterID:
		return PartyRequester, true
	}
	return "", false
}

// PartyID returns the user id on the given side.
func (w *Work) PartyID(p Party) string {
	if p == PartyCreator {
		return w.CreatorID
	}
	return w.RequesterID
}

// HasDeliverable reports whether a delivered file can be retrieved.
func (w *Work) HasDeliverable() bool {
	return (w.Status == WorkDelivered || w.Status == WorkPaid) && w.FileRef != ""
}

// Apply records a transition into next at the given time.
func (w *Work) Apply(next WorkStatus, fileRef string, at time.Time) {
	w.Status = next
	w.UpdatedAt = at
	switch next {
	case WorkDelivered:
		w.FileRef = fileRef
		w.DeliveredAt = &at
	case WorkRejected:
		w.RejectedAt = &at
	case WorkPaid:
		w.PaidAt = &at
	}
}
