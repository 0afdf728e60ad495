package reconciliation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/lock"
	"github.com/kirinyoku/calendar-engine/internal/repository/memory"
	"github.com/kirinyoku/calendar-engine/internal/service/calendar"
	"github.com/kirinyoku/calendar-engine/internal/service/pricing"
	"github.com/kirinyoku/calendar-engine/internal/service/reconciliation"
	"github.com/kirinyoku/calendar-engine/internal/service/restriction"
)

const org = int64(1)

var today = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func day(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }

type fakeChannel struct {
	days []domain.ChannelCalendarDay
	err  error
	hits int
}

func (f *fakeChannel) FetchChannelCalendar(
	ctx context.Context,
	conn domain.ChannelConnection,
	r domain.DateRange,
) ([]domain.ChannelCalendarDay, error) {
	f.hits++
	return f.days, f.err
}

type fixture struct {
	store  *memory.Store
	engine *calendar.Engine
	conn   domain.ChannelConnection
}

func newFixture(t *testing.T, autoFix bool) fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	tenant := store.Tenant(org)

	propID, err := tenant.CreateProperty(ctx, domain.Property{
		Name: "Cliff House", Currency: "EUR", NightlyPrice: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	connID, err := tenant.CreateChannelConnection(ctx, domain.ChannelConnection{
		PropertyID: propID, Channel: "airbnb", ExternalListingID: "L-77", AutoFix: autoFix, Active: true,
	})
	require.NoError(t, err)

	conn, err := tenant.ChannelConnection(ctx, connID)
	require.NoError(t, err)

	engine := calendar.New(
		store,
		lock.NewLocal(time.Second),
		restriction.NewWithClock(func() time.Time { return today }),
		pricing.NewWithClock(store, func() time.Time { return today }),
		nil, nil, calendar.Config{},
	)

	return fixture{store: store, engine: engine, conn: conn}
}

func (f fixture) runner(ch *fakeChannel, threshold int64) *reconciliation.Runner {
	return reconciliation.New(f.store, f.store, ch, f.engine, nil, reconciliation.Config{
		HorizonDays:  30,
		ThresholdPct: decimal.NewFromInt(threshold),
	}).WithClock(func() time.Time { return today })
}

func TestRunner_FixesChannelDivergence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	// A block an earlier run copied from the channel.
	_, err := f.engine.Execute(ctx, calendar.Command{
		OrganizationID: org,
		PropertyID:     f.conn.PropertyID,
		Type:           domain.CommandBlock,
		Range:          domain.DateRange{CheckIn: day(10), CheckOut: day(11)},
		Source:         calendar.SourceReconciliation,
	})
	require.NoError(t, err)

	ch := &fakeChannel{days: []domain.ChannelCalendarDay{
		{Date: day(5), Status: domain.DayBooked, ReservationRef: "HM-1"},
		{Date: day(6), Status: domain.DayBooked, ReservationRef: "HM-1"},
		{Date: day(10), Status: domain.DayAvailable},
	}}
	r := f.runner(ch, 5)

	run, err := r.Run(ctx, f.conn)
	require.NoError(t, err)
	assert.Equal(t, 30, run.PMSDaysChecked)
	assert.Equal(t, 3, run.ChannelDaysChecked)
	assert.Equal(t, 3, run.DiscrepanciesFound)
	assert.Equal(t, 3, run.DiscrepanciesFixed)
	assert.Equal(t, domain.ReconcileSuccess, run.Status)
	assert.True(t, run.DivergencePercent.IsZero())

	days, err := f.store.Tenant(org).CalendarDays(ctx, f.conn.PropertyID, domain.DateRange{CheckIn: day(5), CheckOut: day(11)})
	require.NoError(t, err)
	byDate := map[time.Time]domain.CalendarDay{}
	for _, d := range days {
		byDate[d.Date] = d
	}
	assert.Equal(t, domain.DayBooked, byDate[day(5)].Status)
	assert.Equal(t, "HM-1", byDate[day(6)].ReservationID)
	assert.Equal(t, calendar.SourceReconciliation, byDate[day(5)].Source)
	assert.Equal(t, domain.DayAvailable, byDate[day(10)].Status)

	second, err := r.Run(ctx, f.conn)
	require.NoError(t, err)
	assert.Equal(t, 0, second.DiscrepanciesFound)
	assert.Equal(t, domain.ReconcileSuccess, second.Status)

	assert.Len(t, f.store.ReconciliationRuns(), 2)
}

func TestRunner_PMSBookingRequestsResync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	_, err := f.engine.Execute(ctx, calendar.Command{
		OrganizationID:     org,
		PropertyID:         f.conn.PropertyID,
		Type:               domain.CommandBook,
		Range:              domain.DateRange{CheckIn: day(3), CheckOut: day(4)},
		Payload:            domain.BookPayload{ReservationID: "R-9"},
		BypassRestrictions: true,
	})
	require.NoError(t, err)

	run, err := f.runner(&fakeChannel{}, 1).Run(ctx, f.conn)
	require.NoError(t, err)

	assert.Equal(t, 1, run.DiscrepanciesFound)
	assert.Equal(t, 0, run.DiscrepanciesFixed)
	assert.Equal(t, "3.33", run.DivergencePercent.StringFixed(2))
	assert.Equal(t, domain.ReconcileDivergence, run.Status)

	var resync int
	for _, ev := range f.store.OutboxEvents() {
		if ev.EventType == domain.EventCalendarResync {
			resync++
			assert.Equal(t, domain.OutboxPending, ev.Status)
		}
	}
	assert.Equal(t, 1, resync)
}

func TestRunner_ReportOnlyWithoutAutoFix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	ch := &fakeChannel{days: []domain.ChannelCalendarDay{
		{Date: day(2), Status: domain.DayBlocked},
	}}
	run, err := f.runner(ch, 5).Run(ctx, f.conn)
	require.NoError(t, err)

	assert.Equal(t, 1, run.DiscrepanciesFound)
	assert.Equal(t, 0, run.DiscrepanciesFixed)
	assert.Equal(t, domain.ReconcileSuccess, run.Status)
}

func TestRunner_ChannelErrorFailsRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	run, err := f.runner(&fakeChannel{err: errors.New("gateway down")}, 5).Run(ctx, f.conn)
	require.Error(t, err)
	assert.Equal(t, domain.ReconcileFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "gateway down")

	runs := f.store.ReconciliationRuns()
	require.Len(t, runs, 1)
	assert.Equal(t, domain.ReconcileFailed, runs[0].Status)
}

func TestRunner_RunAllAndRunConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	ch := &fakeChannel{}
	r := f.runner(ch, 5)

	runs, err := r.RunAll(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, f.conn.ID, runs[0].ConnectionID)

	_, err = r.RunConnection(ctx, org+1, f.conn.ID)
	assert.ErrorIs(t, err, reconciliation.ErrConnectionNotFound)

	_, err = r.RunConnection(ctx, org, f.conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ch.hits)
}

func TestRunner_KeepsPMSBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	_, err := f.engine.Execute(ctx, calendar.Command{
		OrganizationID: org,
		PropertyID:     f.conn.PropertyID,
		Type:           domain.CommandBlock,
		Range:          domain.DateRange{CheckIn: day(10), CheckOut: day(13)},
		Payload:        domain.BlockPayload{Maintenance: true},
	})
	require.NoError(t, err)
	_, err = f.engine.Execute(ctx, calendar.Command{
		OrganizationID: org,
		PropertyID:     f.conn.PropertyID,
		Type:           domain.CommandBlock,
		Range:          domain.DateRange{CheckIn: day(20), CheckOut: day(21)},
	})
	require.NoError(t, err)

	// The channel has not seen either block yet.
	run, err := f.runner(&fakeChannel{}, 50).Run(ctx, f.conn)
	require.NoError(t, err)
	assert.Equal(t, 4, run.DiscrepanciesFound)
	assert.Equal(t, 0, run.DiscrepanciesFixed)

	days, err := f.store.Tenant(org).CalendarDays(ctx, f.conn.PropertyID, domain.DateRange{CheckIn: day(10), CheckOut: day(21)})
	require.NoError(t, err)
	statuses := map[time.Time]domain.DayStatus{}
	for _, d := range days {
		statuses[d.Date] = d.Status
		assert.NotEqual(t, calendar.SourceReconciliation, d.Source)
	}
	for _, d := range []int{10, 11, 12} {
		assert.Equal(t, domain.DayMaintenance, statuses[day(d)])
	}
	assert.Equal(t, domain.DayBlocked, statuses[day(20)])

	var resync int
	for _, ev := range f.store.OutboxEvents() {
		if ev.EventType == domain.EventCalendarResync {
			resync++
		}
	}
	assert.Equal(t, 1, resync)

	// A channel that also shows the nights closed agrees with the PMS.
	closed := &fakeChannel{}
	for _, d := range []int{10, 11, 12, 20} {
		closed.days = append(closed.days, domain.ChannelCalendarDay{Date: day(d), Status: domain.DayBlocked})
	}
	run, err = f.runner(closed, 50).Run(ctx, f.conn)
	require.NoError(t, err)
	assert.Zero(t, run.DiscrepanciesFound)
}
