package model

import (
	"time"
)

// Reservation is a committed booking of the campsite. StartFrom and EndTo
// are inclusive calendar dates. The ID is assigned by the store on insert
// and is replaced (not reused) when the reservation is updated.
type Reservation struct {
	ID        string    `json:"id,omitempty"`
	Username  string    `json:"userName" validate:"required,min=1,max=100"`
	Email     string    `json:"email" validate:"required,email"`
	StartFrom Date      `json:"startFrom"`
	EndTo     Date      `json:"endTo"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Span returns the number of calendar days the reservation covers,
// inclusive of both endpoints.
func (r *Reservation) Span() int {
	return int(r.EndTo.UTC().Sub(r.StartFrom.UTC()).Hours()/24) + 1
}

// DateRange is a pair of inclusive calendar dates. It has no identity:
// it is either a free window reported by search or a requested window.
type DateRange struct {
	StartFrom Date `json:"startFrom"`
	EndTo     Date `json:"endTo"`
}

// Overlaps reports whether the two inclusive ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.StartFrom.After(other.EndTo) && !other.StartFrom.After(r.EndTo)
}
