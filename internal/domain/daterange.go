package domain

import (
	"errors"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidRange = errors.New("daterange: check-out must be after check-in")

// DateRange is a half-open interval of calendar nights [CheckIn, CheckOut).
// Both bounds are normalized to midnight UTC.
type DateRange struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

func NewDateRange(checkIn, checkOut time.Time) (DateRange, error) {
	dr := DateRange{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

func (dr DateRange) Validate() error {
	if dr.CheckIn.IsZero() || dr.CheckOut.IsZero() {
		return ErrInvalidRange
	}
	if !dr.CheckOut.After(dr.CheckIn) {
		return ErrInvalidRange
	}
	return nil
}

func (dr DateRange) Nights() int {
	return DaysBetween(dr.CheckIn, dr.CheckOut)
}

func (dr DateRange) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(dr.CheckIn) && d.Before(dr.CheckOut)
}

func (dr DateRange) Overlaps(other DateRange) bool {
	return dr.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(dr.CheckOut)
}

// Dates lists every night of the range in ascending order.
func (dr DateRange) Dates() []time.Time {
	n := dr.Nights()
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	for d := dr.CheckIn; d.Before(dr.CheckOut); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func (dr DateRange) String() string {
	return dr.CheckIn.Format(DateLayout) + "/" + dr.CheckOut.Format(DateLayout)
}

// Day truncates t to its calendar date at midnight UTC.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// Weekdays is an optional day-of-week filter. An empty filter matches every day.
type Weekdays []time.Weekday

func (w Weekdays) Matches(d time.Time) bool {
	if len(w) == 0 {
		return true
	}
	wd := d.Weekday()
	for _, x := range w {
		if x == wd {
			return true
		}
	}
	return false
}

// Validity is an optional activation window; nil bounds are open.
type Validity struct {
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

func (v Validity) Covers(d time.Time) bool {
	d = Day(d)
	if v.ValidFrom != nil && d.Before(Day(*v.ValidFrom)) {
		return false
	}
	if v.ValidTo != nil && d.After(Day(*v.ValidTo)) {
		return false
	}
	return true
}
