package domain

import (
	"strings"
	"time"
)

// UserStatus expresses a seller's willingness to accept new work.
type UserStatus string

const (
	UserAvailable       UserStatus = "available"
	UserAvailableHidden UserStatus = "available_hidden"
	UserUnavailable     UserStatus = "unavailable"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserAvailable, UserAvailableHidden, UserUnavailable:
		return true
	}
	return false
}

// AcceptsRequests reports whether new works may be created against a user in this status.
func (s UserStatus) AcceptsRequests() bool {
	return s == UserAvailable || s == UserAvailableHidden
}

// User is both the authenticated identity and the seller profile.
type User struct {
	ID          string      `json:"id"`
	ExternalID  string      `json:"-"`
	Handle      string      `json:"handle"`
	DisplayName string      `json:"display_name"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
	Description string      `json:"description"`
	Status      UserStatus  `json:"status"`
	Plans       []PricePlan `json:"plans"`
	// Version guards read-modify-write cycles in stores without row locks.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeHandle returns the case-insensitive lookup form of a handle.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// HasActivePlan reports whether any plan is active.
func HasActivePlan(plans []PricePlan) bool {
	for _, p := range plans {
		if p.Active() {
			return true
		}
	}
	return false
}

// HasActivePlan reports whether the user owns at least one active plan.
func (u *User) HasActivePlan() bool {
	return HasActivePlan(u.Plans)
}

// Plan returns the user's plan with the given id.
func (u *User) Plan(id string) (*PricePlan, bool) {
	for i := range u.Plans {
		if u.Plans[i].ID == id {
			return &u.Plans[i], true
		}
	}
	return nil, false
}

// VisiblePlans returns the plans shown on the public profile.
func (u *User) VisiblePlans() []PricePlan {
	out := make([]PricePlan, 0, len(u.Plans))
	for _, p := range u.Plans {
		if !p.Hidden {
			out = append(out, p)
		}
	}
	return out
}

// RequestablePlan returns the plan a new work may be created against, or the
// validation failure that prevents it.
func (u *User) RequestablePlan(planID string) (*PricePlan, error) {
	plan, ok := u.Plan(planID)
	if !ok || !plan.Active() {
		return nil, ErrPlanInactive
	}
	if !u.Status.AcceptsRequests() {
		return nil, ErrCreatorUnavailable
	}
	return plan, nil
}

// SetStatus changes the user's status, refusing any accepting status
// while the user has no active plan.
func (u *User) SetStatus(s UserStatus) error {
	if !s.Valid() {
		return ErrInvalidUserStatus
	}
	if s.AcceptsRequests() && !u.HasActivePlan() {
		return ErrNoActivePlan
	}
	u.Status = s
	return nil
}

// EnforceAvailability downgrades the user to unavailable when no active plan
// remains. It reports whether a downgrade happened.
func (u *User) EnforceAvailability() bool {
	if u.Status.AcceptsRequests() && !u.HasActivePlan() {
		u.Status = UserUnavailable
		return true
	}
	return false
}

// RemovePlan deletes the plan with the given id and reports whether it existed.
func (u *User) RemovePlan(id string) bool {
	for i := range u.Plans {
		if u.Plans[i].ID == id {
			u.Plans = append(u.Plans[:i], u.Plans[i+1:]...)
			return true
		}
	}
	return false
}

// Summary returns the public identity fields of the user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// UserSummary is the counterpart view attached to work listings.
type UserSummary struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}
