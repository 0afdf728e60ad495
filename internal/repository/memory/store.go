// Package memory is a single-process implementation of the repository
// interfaces. Writes made inside RunTx are buffered and applied atomically on
// commit; reads see the buffer first and then committed state. Calendar
// writers rely on the property lock for isolation, as with Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

type dayKey struct {
	property int64
	date     string
}

func keyOf(propertyID int64, d time.Time) dayKey {
	return dayKey{property: propertyID, date: domain.Day(d).Format(domain.DateLayout)}
}

type outboxRow struct {
	seq int64
	ev  domain.OutboxEvent
}

type Store struct {
	mu     sync.RWMutex
	nextID atomic.Int64
	now    func() time.Time

	properties   map[int64]domain.Property
	days         map[dayKey]domain.CalendarDay
	commands     []domain.CalendarCommand
	restrictions map[int64]domain.BookingRestriction
	ratePlans    map[int64]domain.RatePlan
	overrides    map[dayKey]domain.RateOverride
	modifiers    map[int64]domain.ChannelRateModifier
	losDiscounts map[int64]domain.LengthOfStayDiscount
	occupancy    map[int64]domain.OccupancyPricing
	yieldRules   map[int64]domain.YieldRule
	connections  map[int64]domain.ChannelConnection
	runs         []domain.ReconciliationRun
	outbox       []*outboxRow
	outboxSeq    int64
}

type Option func(*Store)

// WithClock replaces time.Now, mostly for tests of outbox scheduling.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:          time.Now,
		properties:   make(map[int64]domain.Property),
		days:         make(map[dayKey]domain.CalendarDay),
		restrictions: make(map[int64]domain.BookingRestriction),
		ratePlans:    make(map[int64]domain.RatePlan),
		overrides:    make(map[dayKey]domain.RateOverride),
		modifiers:    make(map[int64]domain.ChannelRateModifier),
		losDiscounts: make(map[int64]domain.LengthOfStayDiscount),
		occupancy:    make(map[int64]domain.OccupancyPricing),
		yieldRules:   make(map[int64]domain.YieldRule),
		connections:  make(map[int64]domain.ChannelConnection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RunTx(
	ctx context.Context,
	orgID int64,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := newTx(s, orgID, false)
	if err := fn(ctx, t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range t.writes {
		w()
	}

	return nil
}

// Tenant returns a view whose writes are applied immediately.
func (s *Store) Tenant(orgID int64) repository.Tx {
	return newTx(s, orgID, true)
}

func (s *Store) ActiveChannelConnections(ctx context.Context) ([]domain.ChannelConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ChannelConnection
	for _, c := range s.connections {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrganizationID != out[j].OrganizationID {
			return out[i].OrganizationID < out[j].OrganizationID
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

// OutboxEvents returns a copy of every outbox event in creation order.
func (s *Store) OutboxEvents() []domain.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OutboxEvent, len(s.outbox))
	for i, r := range s.outbox {
		out[i] = r.ev
	}
	return out
}

// ReconciliationRuns returns a copy of every stored run in insertion order.
func (s *Store) ReconciliationRuns() []domain.ReconciliationRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.ReconciliationRun(nil), s.runs...)
}

func (s *Store) allocID() int64 {
	return s.nextID.Add(1)
}

var (
	_ repository.Store            = (*Store)(nil)
	_ repository.OutboxStore      = (*Store)(nil)
	_ repository.ChannelDirectory = (*Store)(nil)
	_ repository.Tx               = (*tx)(nil)
)
