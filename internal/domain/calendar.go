package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DayStatus string

const (
	DayAvailable   DayStatus = "AVAILABLE"
	DayBooked      DayStatus = "BOOKED"
	DayBlocked     DayStatus = "BLOCKED"
	DayMaintenance DayStatus = "MAINTENANCE"
)

// Unavailable reports whether the status closes the night for sale on a channel.
func (s DayStatus) Unavailable() bool {
	return s == DayBooked || s == DayBlocked || s == DayMaintenance
}

type Property struct {
	ID             int64
	OrganizationID int64
	Name           string
	Currency       string
	NightlyPrice   decimal.Decimal
	CalendarVer    int64
}

// CalendarDay is the state of one night of one property.
// Status BOOKED holds exactly when ReservationID is non-empty.
type CalendarDay struct {
	OrganizationID int64           `json:"organization_id"`
	PropertyID     int64           `json:"property_id"`
	Date           time.Time       `json:"date"`
	Status         DayStatus       `json:"status"`
	ReservationID  string          `json:"reservation_id,omitempty"`
	Price          decimal.Decimal `json:"price"`
	MinStay        *int            `json:"min_stay,omitempty"`
	MaxStay        *int            `json:"max_stay,omitempty"`
	Changeover     bool            `json:"changeover"`
	Source         string          `json:"source,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DefaultDay is the implicit state of a night that has never been written.
func DefaultDay(p Property, date time.Time) CalendarDay {
	return CalendarDay{
		OrganizationID: p.OrganizationID,
		PropertyID:     p.ID,
		Date:           Day(date),
		Status:         DayAvailable,
		Price:          p.NightlyPrice,
		Changeover:     true,
	}
}

// Consistent checks the BOOKED ⇔ reservation link invariant.
func (d CalendarDay) Consistent() bool {
	return (d.Status == DayBooked) == (d.ReservationID != "")
}

// FillCalendar returns one day per night of r, taking stored rows where present
// and the property defaults elsewhere.
func FillCalendar(p Property, r DateRange, stored []CalendarDay) []CalendarDay {
	byDate := make(map[time.Time]CalendarDay, len(stored))
	for _, d := range stored {
		byDate[Day(d.Date)] = d
	}
	out := make([]CalendarDay, 0, r.Nights())
	for _, date := range r.Dates() {
		if d, ok := byDate[date]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, DefaultDay(p, date))
	}
	return out
}
