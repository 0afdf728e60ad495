package reconciliation

import (
	"time"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/service/calendar"
)

type fixKind int

const (
	fixNone fixKind = iota
	fixBook
	fixBlock
	fixUnblock
)

// discrepancy is one night on which the PMS and the channel disagree.
type discrepancy struct {
	date    time.Time
	pms     domain.DayStatus
	channel domain.DayStatus
	ref     string
	fix     fixKind
}

// fixGroup is a run of contiguous nights repaired by one command.
type fixGroup struct {
	kind  fixKind
	ref   string
	rng   domain.DateRange
	dates []time.Time
}

// closed folds MAINTENANCE into BLOCKED for comparison.
func closed(s domain.DayStatus) domain.DayStatus {
	if s == domain.DayMaintenance {
		return domain.DayBlocked
	}
	return s
}

// compare returns the divergent nights in date order. Nights the channel did
// not report are AVAILABLE on the channel. A night the PMS holds as BOOKED
// and the channel as BLOCKED is not divergent: it is closed on both sides.
//
// Only blocks that reconciliation itself created are reopened. MAINTENANCE
// and blocks made through the API belong to the PMS, so a channel that shows
// them open is behind and gets no fix.
func compare(pms []domain.CalendarDay, ch []domain.ChannelCalendarDay) []discrepancy {
	byDate := make(map[time.Time]domain.ChannelCalendarDay, len(ch))
	for _, d := range ch {
		byDate[domain.Day(d.Date)] = d
	}

	var out []discrepancy
	for _, d := range pms {
		c, ok := byDate[domain.Day(d.Date)]
		if !ok {
			c = domain.ChannelCalendarDay{Date: d.Date, Status: domain.DayAvailable}
		}

		p, cs := closed(d.Status), closed(c.Status)
		if p == cs {
			continue
		}
		if p == domain.DayBooked && cs == domain.DayBlocked {
			continue
		}

		x := discrepancy{date: domain.Day(d.Date), pms: d.Status, channel: cs, ref: c.ReservationRef}
		switch {
		case p == domain.DayAvailable && cs == domain.DayBooked:
			x.fix = fixBook
		case p == domain.DayAvailable && cs == domain.DayBlocked:
			x.fix = fixBlock
		case d.Status == domain.DayBlocked && cs == domain.DayAvailable && d.Source == calendar.SourceReconciliation:
			x.fix = fixUnblock
		}
		out = append(out, x)
	}

	return out
}

// group merges fixable nights into contiguous ranges with the same fix and,
// for bookings, the same channel reservation.
func group(ds []discrepancy) []fixGroup {
	var out []fixGroup
	for _, d := range ds {
		if d.fix == fixNone {
			continue
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.kind == d.fix && last.ref == d.ref && last.rng.CheckOut.Equal(d.date) {
				last.rng.CheckOut = d.date.AddDate(0, 0, 1)
				last.dates = append(last.dates, d.date)
				continue
			}
		}
		out = append(out, fixGroup{
			kind:  d.fix,
			ref:   d.ref,
			rng:   domain.DateRange{CheckIn: d.date, CheckOut: d.date.AddDate(0, 0, 1)},
			dates: []time.Time{d.date},
		})
	}
	return out
}
