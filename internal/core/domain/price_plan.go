package domain

import "time"

// MinPlanAmount is the lowest price, in currency minor units, a plan may carry.
const MinPlanAmount int64 = 300

// PricePlan is a sellable offering owned by exactly one user.
type PricePlan struct {
	ID          string    `json:"id" bson:"id"`
	UserID      string    `json:"user_id" bson:"user_id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Amount      int64     `json:"amount" bson:"amount"`
	PaymentURL  string    `json:"payment_url,omitempty" bson:"payment_url,omitempty"`
	Hidden      bool      `json:"is_hidden" bson:"hidden"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// Active reports whether the plan can be used for new requests.
func (p PricePlan) Active() bool {
	return p.Amount > 0 && !p.Hidden
}

// Validate checks the write-time constraints of a plan.
func (p PricePlan) Validate() error {
	if p.Amount < MinPlanAmount {
		return ErrAmountBelowMinimum
	}
	return nil
}
