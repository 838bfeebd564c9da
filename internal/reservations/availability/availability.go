// Package availability computes free date ranges from committed
// reservations. It is pure: callers query the store and pass the result in.
package availability

import (
	"campsite/pkg/model"
)

// FreeRanges returns the free sub-ranges of window, given the reservations
// overlapping it sorted by StartFrom ascending. The result is ascending,
// non-overlapping, and clipped to the window. A single linear sweep: each
// reservation is inspected exactly once.
func FreeRanges(window model.DateRange, reservations []*model.Reservation) []model.DateRange {
	if len(reservations) == 0 {
		return []model.DateRange{window}
	}

	results := make([]model.DateRange, 0, len(reservations)+1)
	freeFrom := window.StartFrom

	for _, reservation := range reservations {
		if reservation.StartFrom.Equal(freeFrom) {
			// No gap before this reservation.
			freeFrom = reservation.EndTo.AddDays(1)
			continue
		}

		if freeFrom.Before(window.EndTo) {
			gapEnd := reservation.StartFrom.AddDays(-1)
			// Suppress zero-length gaps from abutting reservations or
			// reservations spilling over the window start.
			if !gapEnd.Before(freeFrom) {
				results = append(results, model.DateRange{StartFrom: freeFrom, EndTo: gapEnd})
			}
			freeFrom = reservation.EndTo.AddDays(1)
		}
	}

	if freeFrom.Before(window.EndTo) {
		results = append(results, model.DateRange{StartFrom: freeFrom, EndTo: window.EndTo})
	}

	return results
}
