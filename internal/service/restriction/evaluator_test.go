package restriction_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	"github.com/kirinyoku/calendar-engine/internal/repository/memory"
	"github.com/kirinyoku/calendar-engine/internal/service/restriction"
)

const org = int64(9)

// July 2026 starts on a Wednesday.
var today = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

func day(d int) time.Time { return time.Date(2026, 7, d, 0, 0, 0, 0, time.UTC) }

func intp(v int) *int { return &v }

func setup(t *testing.T, rules ...domain.BookingRestriction) (repository.Tx, int64) {
	t.Helper()
	ctx := context.Background()

	tenant := memory.New().Tenant(org)
	propID, err := tenant.CreateProperty(ctx, domain.Property{Name: "Dune House", NightlyPrice: decimal.NewFromInt(90)})
	require.NoError(t, err)

	for _, r := range rules {
		r.PropertyID = propID
		if r.StartDate.IsZero() {
			r.StartDate, r.EndDate = day(1), day(31)
		}
		_, err := tenant.CreateRestriction(ctx, r)
		require.NoError(t, err)
	}
	return tenant, propID
}

func bookNights(t *testing.T, tenant repository.Tx, propID int64, days ...int) {
	t.Helper()
	prop, err := tenant.Property(context.Background(), propID)
	require.NoError(t, err)

	var rows []domain.CalendarDay
	for _, d := range days {
		cd := domain.DefaultDay(prop, day(d))
		cd.Status = domain.DayBooked
		cd.ReservationID = "R-OLD"
		rows = append(rows, cd)
	}
	require.NoError(t, tenant.SaveCalendarDays(context.Background(), rows))
}

func evaluate(tenant repository.Tx, propID int64, in, out int) error {
	e := restriction.NewWithClock(func() time.Time { return today })
	return e.Evaluate(context.Background(), tenant, restriction.Request{
		PropertyID: propID,
		Range:      domain.DateRange{CheckIn: day(in), CheckOut: day(out)},
		Adults:     2,
	})
}

func TestEvaluate_Codes(t *testing.T) {
	tests := []struct {
		name    string
		rules   []domain.BookingRestriction
		in, out int
		want    domain.RestrictionCode
	}{
		{
			name:  "min stay",
			rules: []domain.BookingRestriction{{MinStay: intp(3)}},
			in:    10, out: 12,
			want: domain.MinStayViolation,
		},
		{
			name:  "max stay",
			rules: []domain.BookingRestriction{{MaxStay: intp(5)}},
			in:    10, out: 17,
			want: domain.MaxStayViolation,
		},
		{
			name:  "closed to arrival",
			rules: []domain.BookingRestriction{{StartDate: day(10), EndDate: day(10), ClosedToArrival: true}},
			in:    10, out: 12,
			want: domain.ClosedToArrival,
		},
		{
			name:  "closed to departure uses the check-out rule",
			rules: []domain.BookingRestriction{{StartDate: day(12), EndDate: day(12), ClosedToDeparture: true}},
			in:    10, out: 12,
			want: domain.ClosedToDeparture,
		},
		{
			name:  "advance notice",
			rules: []domain.BookingRestriction{{AdvanceNoticeDays: 7}},
			in:    4, out: 6,
			want: domain.AdvanceNoticeViolation,
		},
		{
			name:  "arrival weekday",
			rules: []domain.BookingRestriction{{ArrivalDays: domain.Weekdays{time.Saturday}}},
			in:    13, out: 15,
			want: domain.DayOfWeekRestricted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant, propID := setup(t, tt.rules...)

			err := evaluate(tenant, propID, tt.in, tt.out)
			var v *restriction.Violation
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tt.want, v.Code)
		})
	}
}

func TestEvaluate_Accepts(t *testing.T) {
	tenant, propID := setup(t,
		domain.BookingRestriction{MinStay: intp(2), MaxStay: intp(14), ArrivalDays: domain.Weekdays{time.Saturday}, AdvanceNoticeDays: 2},
		domain.BookingRestriction{StartDate: day(20), EndDate: day(20), ClosedToArrival: true},
	)

	assert.NoError(t, evaluate(tenant, propID, 11, 18))
	// The closed-to-arrival rule governs only its own date.
	assert.NoError(t, evaluate(tenant, propID, 18, 20))
}

func TestEvaluate_PriorityWins(t *testing.T) {
	tenant, propID := setup(t,
		domain.BookingRestriction{MinStay: intp(7), Priority: 1},
		domain.BookingRestriction{StartDate: day(10), EndDate: day(16), MinStay: intp(2), Priority: 5},
	)

	assert.NoError(t, evaluate(tenant, propID, 10, 12))

	err := evaluate(tenant, propID, 20, 22)
	var v *restriction.Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, domain.MinStayViolation, v.Code)
}

func TestEvaluate_DaysOfWeekFilter(t *testing.T) {
	tenant, propID := setup(t, domain.BookingRestriction{
		DaysOfWeek: domain.Weekdays{time.Friday, time.Saturday}, MinStay: intp(2),
	})

	// Friday the 10th is governed, Monday the 13th is not.
	err := evaluate(tenant, propID, 10, 11)
	var v *restriction.Violation
	require.ErrorAs(t, err, &v)
	assert.NoError(t, evaluate(tenant, propID, 13, 14))
}

func TestEvaluate_GapDays(t *testing.T) {
	tenant, propID := setup(t, domain.BookingRestriction{GapDays: 2})
	bookNights(t, tenant, propID, 8, 20)

	tests := []struct {
		name    string
		in, out int
		ok      bool
	}{
		{"one free night before", 10, 12, false},
		{"two free nights before", 11, 13, true},
		{"one free night after", 15, 19, false},
		{"two free nights after", 15, 18, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := evaluate(tenant, propID, tt.in, tt.out)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var v *restriction.Violation
			require.ErrorAs(t, err, &v)
			assert.Equal(t, domain.GapDaysViolation, v.Code)
		})
	}
}

func TestEvaluate_NoChangeover(t *testing.T) {
	tenant, propID := setup(t)
	bookNights(t, tenant, propID, 9)

	prop, err := tenant.Property(context.Background(), propID)
	require.NoError(t, err)
	cd := domain.DefaultDay(prop, day(10))
	cd.Changeover = false
	require.NoError(t, tenant.SaveCalendarDays(context.Background(), []domain.CalendarDay{cd}))

	err = evaluate(tenant, propID, 10, 12)
	var v *restriction.Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, domain.GapDaysViolation, v.Code)
}

func TestEvaluate_PerDayStayLimits(t *testing.T) {
	tenant, propID := setup(t)

	prop, err := tenant.Property(context.Background(), propID)
	require.NoError(t, err)
	cd := domain.DefaultDay(prop, day(15))
	cd.MinStay = intp(4)
	require.NoError(t, tenant.SaveCalendarDays(context.Background(), []domain.CalendarDay{cd}))

	err = evaluate(tenant, propID, 15, 17)
	var v *restriction.Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, domain.MinStayViolation, v.Code)

	assert.NoError(t, evaluate(tenant, propID, 15, 19))
}

func TestEvaluate_InvalidRange(t *testing.T) {
	tenant, propID := setup(t)

	err := evaluate(tenant, propID, 12, 12)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}
