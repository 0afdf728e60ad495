package domain

import "time"

type RestrictionCode string

const (
	MinStayViolation       RestrictionCode = "MIN_STAY_VIOLATION"
	MaxStayViolation       RestrictionCode = "MAX_STAY_VIOLATION"
	ClosedToArrival        RestrictionCode = "CLOSED_TO_ARRIVAL"
	ClosedToDeparture      RestrictionCode = "CLOSED_TO_DEPARTURE"
	GapDaysViolation       RestrictionCode = "GAP_DAYS_VIOLATION"
	AdvanceNoticeViolation RestrictionCode = "ADVANCE_NOTICE_VIOLATION"
	DayOfWeekRestricted    RestrictionCode = "DAY_OF_WEEK_RESTRICTED"
)

type BookingRestriction struct {
	ID                int64     `json:"id"`
	OrganizationID    int64     `json:"organization_id"`
	PropertyID        int64     `json:"property_id"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	DaysOfWeek        Weekdays  `json:"days_of_week,omitempty"`
	ArrivalDays       Weekdays  `json:"arrival_days,omitempty"`
	MinStay           *int      `json:"min_stay,omitempty"`
	MaxStay           *int      `json:"max_stay,omitempty"`
	ClosedToArrival   bool      `json:"closed_to_arrival"`
	ClosedToDeparture bool      `json:"closed_to_departure"`
	GapDays           int       `json:"gap_days"`
	AdvanceNoticeDays int       `json:"advance_notice_days"`
	Priority          int       `json:"priority"`
	CreatedAt         time.Time `json:"created_at"`
}

// AppliesTo reports whether the rule governs the given date: the date lies in
// [StartDate, EndDate] and matches the day-of-week filter.
func (r BookingRestriction) AppliesTo(d time.Time) bool {
	d = Day(d)
	if d.Before(Day(r.StartDate)) || d.After(Day(r.EndDate)) {
		return false
	}
	return r.DaysOfWeek.Matches(d)
}

// Outranks orders restrictions: higher priority first, then most recently
// created, then highest id.
func (r BookingRestriction) Outranks(o BookingRestriction) bool {
	if r.Priority != o.Priority {
		return r.Priority > o.Priority
	}
	if !r.CreatedAt.Equal(o.CreatedAt) {
		return r.CreatedAt.After(o.CreatedAt)
	}
	return r.ID > o.ID
}
