package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	"github.com/kirinyoku/calendar-engine/internal/repository/memory"
)

func day(d int) time.Time { return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC) }

func newProperty(t *testing.T, s *memory.Store, org int64) domain.Property {
	t.Helper()
	ctx := context.Background()
	id, err := s.Tenant(org).CreateProperty(ctx, domain.Property{Name: "Lake View", NightlyPrice: decimal.NewFromInt(70)})
	require.NoError(t, err)
	p, err := s.Tenant(org).Property(ctx, id)
	require.NoError(t, err)
	return p
}

func TestStore_RunTxIsAtomic(t *testing.T) {
	s := memory.New()
	prop := newProperty(t, s, 1)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunTx(ctx, 1, func(ctx context.Context, tx repository.Tx) error {
		d := domain.DefaultDay(prop, day(1))
		d.Status = domain.DayBlocked
		require.NoError(t, tx.SaveCalendarDays(ctx, []domain.CalendarDay{d}))

		v, err := tx.NextCalendarVersion(ctx, prop.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)

		// The transaction reads its own writes.
		days, err := tx.CalendarDays(ctx, prop.ID, domain.DateRange{CheckIn: day(1), CheckOut: day(2)})
		require.NoError(t, err)
		require.Len(t, days, 1)
		assert.Equal(t, domain.DayBlocked, days[0].Status)

		return boom
	})
	require.ErrorIs(t, err, boom)

	days, err := s.Tenant(1).CalendarDays(ctx, prop.ID, domain.DateRange{CheckIn: day(1), CheckOut: day(2)})
	require.NoError(t, err)
	assert.Empty(t, days)

	p, err := s.Tenant(1).Property(ctx, prop.ID)
	require.NoError(t, err)
	assert.Zero(t, p.CalendarVer)
}

func TestStore_TenantIsolation(t *testing.T) {
	s := memory.New()
	prop := newProperty(t, s, 1)
	ctx := context.Background()

	other := s.Tenant(2)
	_, err := other.Property(ctx, prop.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	d := domain.DefaultDay(prop, day(3))
	err = other.SaveCalendarDays(ctx, []domain.CalendarDay{d})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = other.CreateRatePlan(ctx, domain.RatePlan{PropertyID: prop.ID, Type: domain.PlanBase})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_RejectsBrokenBookingLink(t *testing.T) {
	s := memory.New()
	prop := newProperty(t, s, 1)

	d := domain.DefaultDay(prop, day(4))
	d.Status = domain.DayBooked
	err := s.Tenant(1).SaveCalendarDays(context.Background(), []domain.CalendarDay{d})
	assert.ErrorIs(t, err, repository.ErrConflict)

	d.Status = domain.DayAvailable
	d.ReservationID = "R-1"
	err = s.Tenant(1).SaveCalendarDays(context.Background(), []domain.CalendarDay{d})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestStore_CommandLogLimitKeepsNewest(t *testing.T) {
	s := memory.New()
	prop := newProperty(t, s, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Tenant(1).AppendCommand(ctx, domain.CalendarCommand{
			ID: uuid.New(), PropertyID: prop.ID, Type: domain.CommandBlock, Actor: string(rune('a' + i)),
		}))
	}

	cmds, err := s.Tenant(1).Commands(ctx, prop.ID, 2)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "d", cmds[0].Actor)
	assert.Equal(t, "e", cmds[1].Actor)

	none, err := s.Tenant(2).Commands(ctx, prop.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_OutboxLease(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s := memory.New(memory.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	ev := domain.OutboxEvent{ID: uuid.New(), Payload: []byte(`{}`), CreatedAt: now}
	require.NoError(t, s.Tenant(1).EnqueueOutbox(ctx, ev))

	claimed, err := s.ClaimOutbox(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	again, err := s.ClaimOutbox(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, again, "leased events are hidden")

	now = now.Add(31 * time.Second)
	again, err = s.ClaimOutbox(ctx, 10, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, again, 1, "an expired lease is claimed again")

	require.NoError(t, s.MarkOutboxSent(ctx, ev.ID))
	require.NoError(t, s.MarkOutboxFailed(ctx, ev.ID, 9, "late"))
	events := s.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.OutboxSent, events[0].Status, "terminal states do not change")
}

func TestStore_ChannelConnections(t *testing.T) {
	s := memory.New()
	a := newProperty(t, s, 1)
	b := newProperty(t, s, 2)
	ctx := context.Background()

	_, err := s.Tenant(1).CreateChannelConnection(ctx, domain.ChannelConnection{PropertyID: a.ID, Channel: "airbnb", Active: true})
	require.NoError(t, err)
	_, err = s.Tenant(1).CreateChannelConnection(ctx, domain.ChannelConnection{PropertyID: a.ID, Channel: "airbnb", Active: true})
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = s.Tenant(2).CreateChannelConnection(ctx, domain.ChannelConnection{PropertyID: b.ID, Channel: "vrbo", Active: false})
	require.NoError(t, err)

	active, err := s.ActiveChannelConnections(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(1), active[0].OrganizationID)
}
