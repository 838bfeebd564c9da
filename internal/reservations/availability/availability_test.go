package availability

import (
	"testing"
	"time"

	"campsite/pkg/model"
)

func june(day int) model.Date {
	return model.NewDate(2026, time.June, day)
}

func reserved(startDay, endDay int) *model.Reservation {
	return &model.Reservation{
		Username:  "guest",
		Email:     "guest@example.com",
		StartFrom: june(startDay),
		EndTo:     june(endDay),
	}
}

func TestFreeRanges(t *testing.T) {
	window := model.DateRange{StartFrom: june(1), EndTo: june(30)}

	tests := []struct {
		name         string
		reservations []*model.Reservation
		expected     []model.DateRange
	}{
		{
			name:         "empty store returns the whole window",
			reservations: nil,
			expected:     []model.DateRange{{StartFrom: june(1), EndTo: june(30)}},
		},
		{
			name: "gaps around two reservations",
			reservations: []*model.Reservation{
				reserved(10, 10),
				reserved(20, 22),
			},
			expected: []model.DateRange{
				{StartFrom: june(1), EndTo: june(9)},
				{StartFrom: june(11), EndTo: june(19)},
				{StartFrom: june(23), EndTo: june(30)},
			},
		},
		{
			name: "reservation at window start produces no leading gap",
			reservations: []*model.Reservation{
				reserved(1, 3),
			},
			expected: []model.DateRange{
				{StartFrom: june(4), EndTo: june(30)},
			},
		},
		{
			name: "abutting reservations produce no zero-length gap",
			reservations: []*model.Reservation{
				reserved(5, 7),
				reserved(8, 10),
			},
			expected: []model.DateRange{
				{StartFrom: june(1), EndTo: june(4)},
				{StartFrom: june(11), EndTo: june(30)},
			},
		},
		{
			name: "single day gap between reservations",
			reservations: []*model.Reservation{
				reserved(5, 7),
				reserved(9, 11),
			},
			expected: []model.DateRange{
				{StartFrom: june(1), EndTo: june(4)},
				{StartFrom: june(8), EndTo: june(8)},
				{StartFrom: june(12), EndTo: june(30)},
			},
		},
		{
			name: "reservation covering the tail leaves no trailing gap",
			reservations: []*model.Reservation{
				reserved(25, 30),
			},
			expected: []model.DateRange{
				{StartFrom: june(1), EndTo: june(24)},
			},
		},
		{
			name: "back to back coverage of the whole window",
			reservations: []*model.Reservation{
				reserved(1, 10),
				reserved(11, 20),
				reserved(21, 30),
			},
			expected: []model.DateRange{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FreeRanges(window, tt.reservations)

			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d free ranges, got %d: %v", len(tt.expected), len(got), got)
			}
			for i, want := range tt.expected {
				if !got[i].StartFrom.Equal(want.StartFrom) || !got[i].EndTo.Equal(want.EndTo) {
					t.Errorf("range %d: expected [%s, %s], got [%s, %s]",
						i, want.StartFrom, want.EndTo, got[i].StartFrom, got[i].EndTo)
				}
			}
		})
	}
}

func TestFreeRanges_SingleDayWindow(t *testing.T) {
	window := model.DateRange{StartFrom: june(15), EndTo: june(15)}

	got := FreeRanges(window, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 free range, got %d", len(got))
	}
	if !got[0].StartFrom.Equal(june(15)) || !got[0].EndTo.Equal(june(15)) {
		t.Errorf("expected [%s, %s], got [%s, %s]", june(15), june(15), got[0].StartFrom, got[0].EndTo)
	}

	got = FreeRanges(window, []*model.Reservation{reserved(15, 15)})
	if len(got) != 0 {
		t.Errorf("expected no free ranges, got %v", got)
	}
}

func TestFreeRanges_ResultsAreSortedAndDisjoint(t *testing.T) {
	window := model.DateRange{StartFrom: june(1), EndTo: june(30)}
	reservations := []*model.Reservation{
		reserved(3, 4),
		reserved(9, 9),
		reserved(14, 16),
		reserved(21, 23),
	}

	got := FreeRanges(window, reservations)
	for i := range got {
		if got[i].StartFrom.After(got[i].EndTo) {
			t.Errorf("range %d is reversed: [%s, %s]", i, got[i].StartFrom, got[i].EndTo)
		}
		if i > 0 && !got[i-1].EndTo.Before(got[i].StartFrom) {
			t.Errorf("ranges %d and %d overlap or touch: %v", i-1, i, got)
		}
	}
}
