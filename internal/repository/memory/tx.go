package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

// tx is the organization-scoped view. In buffered mode writes are queued
// and applied by Store.RunTx on commit.
type tx struct {
	s      *Store
	org    int64
	direct bool

	days     map[dayKey]domain.CalendarDay
	versions map[int64]int64
	writes   []func()
}

func newTx(s *Store, org int64, direct bool) *tx {
	return &tx{
		s:        s,
		org:      org,
		direct:   direct,
		days:     make(map[dayKey]domain.CalendarDay),
		versions: make(map[int64]int64),
	}
}

func (t *tx) write(w func()) {
	if t.direct {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		w()
		return
	}
	t.writes = append(t.writes, w)
}

// ownedProperty must be called with s.mu held.
func (t *tx) ownedProperty(propertyID int64) (domain.Property, bool) {
	p, ok := t.s.properties[propertyID]
	if !ok || p.OrganizationID != t.org {
		return domain.Property{}, false
	}
	if v, ok := t.versions[propertyID]; ok {
		p.CalendarVer = v
	}
	return p, true
}

func (t *tx) Property(ctx context.Context, propertyID int64) (domain.Property, error) {
	const op = "memory.Property"

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	p, ok := t.ownedProperty(propertyID)
	if !ok {
		return domain.Property{}, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return p, nil
}

func (t *tx) CalendarDays(ctx context.Context, propertyID int64, r domain.DateRange) ([]domain.CalendarDay, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []domain.CalendarDay
	for _, date := range r.Dates() {
		k := keyOf(propertyID, date)
		if d, ok := t.days[k]; ok {
			out = append(out, d)
			continue
		}
		if d, ok := t.s.days[k]; ok && d.OrganizationID == t.org {
			out = append(out, d)
		}
	}
	return out, nil
}

func (t *tx) SaveCalendarDays(ctx context.Context, days []domain.CalendarDay) error {
	const op = "memory.SaveCalendarDays"

	t.s.mu.RLock()
	for _, d := range days {
		if _, ok := t.ownedProperty(d.PropertyID); !ok || d.OrganizationID != t.org {
			t.s.mu.RUnlock()
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
		if !d.Consistent() {
			t.s.mu.RUnlock()
			return fmt.Errorf("%s: %w: booking link", op, repository.ErrConflict)
		}
	}
	t.s.mu.RUnlock()

	now := t.s.now()
	for _, d := range days {
		d.Date = domain.Day(d.Date)
		d.UpdatedAt = now
		k := keyOf(d.PropertyID, d.Date)
		if !t.direct {
			t.days[k] = d
		}
		t.write(func() { t.s.days[k] = d })
	}
	return nil
}

func (t *tx) NextCalendarVersion(ctx context.Context, propertyID int64) (int64, error) {
	const op = "memory.NextCalendarVersion"

	t.s.mu.RLock()
	p, ok := t.ownedProperty(propertyID)
	t.s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	v := p.CalendarVer + 1
	if !t.direct {
		t.versions[propertyID] = v
	}
	t.write(func() {
		p := t.s.properties[propertyID]
		p.CalendarVer = v
		t.s.properties[propertyID] = p
	})
	return v, nil
}

func (t *tx) AppendCommand(ctx context.Context, cmd domain.CalendarCommand) error {
	cmd.OrganizationID = t.org
	t.write(func() { t.s.commands = append(t.s.commands, cmd) })
	return nil
}

func (t *tx) Commands(ctx context.Context, propertyID int64, limit int) ([]domain.CalendarCommand, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []domain.CalendarCommand
	for _, c := range t.s.commands {
		if c.OrganizationID == t.org && c.PropertyID == propertyID {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]domain.CalendarCommand(nil), out...), nil
}

func (t *tx) EnqueueOutbox(ctx context.Context, ev domain.OutboxEvent) error {
	ev.OrganizationID = t.org
	ev.Status = domain.OutboxPending
	ev.NextAttemptAt = ev.CreatedAt
	t.write(func() {
		t.s.outboxSeq++
		t.s.outbox = append(t.s.outbox, &outboxRow{seq: t.s.outboxSeq, ev: ev})
	})
	return nil
}

func (t *tx) Restrictions(ctx context.Context, propertyID int64, date time.Time) ([]domain.BookingRestriction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	date = domain.Day(date)
	var out []domain.BookingRestriction
	for _, r := range t.s.restrictions {
		if r.OrganizationID != t.org || r.PropertyID != propertyID {
			continue
		}
		if date.Before(domain.Day(r.StartDate)) || date.After(domain.Day(r.EndDate)) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Outranks(out[j]) })
	return out, nil
}

func (t *tx) RateOverride(ctx context.Context, propertyID int64, date time.Time) (domain.RateOverride, error) {
	const op = "memory.RateOverride"

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	o, ok := t.s.overrides[keyOf(propertyID, date)]
	if !ok || o.OrganizationID != t.org {
		return domain.RateOverride{}, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return o, nil
}

func (t *tx) RatePlans(ctx context.Context, propertyID int64, date time.Time) ([]domain.RatePlan, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	date = domain.Day(date)
	var out []domain.RatePlan
	for _, p := range t.s.ratePlans {
		if p.OrganizationID != t.org || p.PropertyID != propertyID || !p.IsActive {
			continue
		}
		if date.Before(domain.Day(p.StartDate)) || date.After(domain.Day(p.EndDate)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// scoped reports whether a rule with an optional property applies to propertyID.
func (t *tx) scoped(org int64, ruleProperty *int64, propertyID int64) bool {
	return org == t.org && (ruleProperty == nil || *ruleProperty == propertyID)
}

func (t *tx) ChannelModifiers(
	ctx context.Context,
	propertyID int64,
	channel string,
) ([]domain.ChannelRateModifier, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []domain.ChannelRateModifier
	for _, m := range t.s.modifiers {
		if t.scoped(m.OrganizationID, m.PropertyID, propertyID) && m.Channel == channel && m.IsActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) OccupancyPricing(ctx context.Context, propertyID int64) ([]domain.OccupancyPricing, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []domain.OccupancyPricing
	for _, o := range t.s.occupancy {
		if t.scoped(o.OrganizationID, o.PropertyID, propertyID) && o.IsActive {
			out = append(out, o)
		}
	}
	// Property-specific rows first, as in Postgres.
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].PropertyID != nil, out[j].PropertyID != nil
		if pi != pj {
			return pi
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) LengthOfStayDiscounts(ctx context.Context, propertyID int64) ([]domain.LengthOfStayDiscount, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []domain.LengthOfStayDiscount
	for _, l := range t.s.losDiscounts {
		if t.scoped(l.OrganizationID, l.PropertyID, propertyID) && l.IsActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) YieldRules(ctx context.Context, propertyID int64) ([]domain.YieldRule, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var out []domain.YieldRule
	for _, y := range t.s.yieldRules {
		if t.scoped(y.OrganizationID, y.PropertyID, propertyID) && y.IsActive {
			out = append(out, y)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) CreateProperty(ctx context.Context, p domain.Property) (int64, error) {
	p.ID = t.s.allocID()
	p.OrganizationID = t.org
	p.CalendarVer = 0
	if p.Currency == "" {
		p.Currency = "USD"
	}
	t.write(func() { t.s.properties[p.ID] = p })
	return p.ID, nil
}

func (t *tx) requireProperty(op string, propertyID int64) error {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if _, ok := t.ownedProperty(propertyID); !ok {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return nil
}

func (t *tx) CreateRatePlan(ctx context.Context, p domain.RatePlan) (int64, error) {
	if err := t.requireProperty("memory.CreateRatePlan", p.PropertyID); err != nil {
		return 0, err
	}
	p.ID = t.s.allocID()
	p.OrganizationID = t.org
	t.write(func() { t.s.ratePlans[p.ID] = p })
	return p.ID, nil
}

func (t *tx) UpsertRateOverride(ctx context.Context, o domain.RateOverride) (int64, error) {
	if err := t.requireProperty("memory.UpsertRateOverride", o.PropertyID); err != nil {
		return 0, err
	}

	k := keyOf(o.PropertyID, o.Date)

	t.s.mu.RLock()
	existing, ok := t.s.overrides[k]
	t.s.mu.RUnlock()

	if ok {
		o.ID = existing.ID
	} else {
		o.ID = t.s.allocID()
	}
	o.OrganizationID = t.org
	o.Date = domain.Day(o.Date)
	t.write(func() { t.s.overrides[k] = o })
	return o.ID, nil
}

func (t *tx) CreateRestriction(ctx context.Context, r domain.BookingRestriction) (int64, error) {
	if err := t.requireProperty("memory.CreateRestriction", r.PropertyID); err != nil {
		return 0, err
	}
	r.ID = t.s.allocID()
	r.OrganizationID = t.org
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.s.now()
	}
	t.write(func() { t.s.restrictions[r.ID] = r })
	return r.ID, nil
}

func (t *tx) CreateChannelModifier(ctx context.Context, m domain.ChannelRateModifier) (int64, error) {
	m.ID = t.s.allocID()
	m.OrganizationID = t.org
	t.write(func() { t.s.modifiers[m.ID] = m })
	return m.ID, nil
}

func (t *tx) CreateLengthOfStayDiscount(ctx context.Context, l domain.LengthOfStayDiscount) (int64, error) {
	l.ID = t.s.allocID()
	l.OrganizationID = t.org
	t.write(func() { t.s.losDiscounts[l.ID] = l })
	return l.ID, nil
}

func (t *tx) CreateOccupancyPricing(ctx context.Context, o domain.OccupancyPricing) (int64, error) {
	o.ID = t.s.allocID()
	o.OrganizationID = t.org
	t.write(func() { t.s.occupancy[o.ID] = o })
	return o.ID, nil
}

func (t *tx) CreateYieldRule(ctx context.Context, y domain.YieldRule) (int64, error) {
	if y.Trigger == nil {
		return 0, fmt.Errorf("memory.CreateYieldRule: yield trigger is nil")
	}
	y.ID = t.s.allocID()
	y.OrganizationID = t.org
	t.write(func() { t.s.yieldRules[y.ID] = y })
	return y.ID, nil
}

func (t *tx) CreateChannelConnection(ctx context.Context, c domain.ChannelConnection) (int64, error) {
	const op = "memory.CreateChannelConnection"

	if err := t.requireProperty(op, c.PropertyID); err != nil {
		return 0, err
	}

	t.s.mu.RLock()
	for _, existing := range t.s.connections {
		if existing.PropertyID == c.PropertyID && existing.Channel == c.Channel {
			t.s.mu.RUnlock()
			return 0, fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
	}
	t.s.mu.RUnlock()

	c.ID = t.s.allocID()
	c.OrganizationID = t.org
	t.write(func() { t.s.connections[c.ID] = c })
	return c.ID, nil
}

func (t *tx) ChannelConnection(ctx context.Context, id int64) (domain.ChannelConnection, error) {
	const op = "memory.ChannelConnection"

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	c, ok := t.s.connections[id]
	if !ok || c.OrganizationID != t.org {
		return domain.ChannelConnection{}, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	return c, nil
}

func (t *tx) SaveReconciliationRun(ctx context.Context, run domain.ReconciliationRun) error {
	run.OrganizationID = t.org
	t.write(func() { t.s.runs = append(t.s.runs, run) })
	return nil
}
