package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/lock"
	"github.com/kirinyoku/calendar-engine/internal/observability"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	"github.com/kirinyoku/calendar-engine/internal/service/pricing"
	"github.com/kirinyoku/calendar-engine/internal/service/restriction"
	"github.com/kirinyoku/calendar-engine/internal/uow"
)

const DefaultTopic = "calendar.events.v1"

// Invalidator drops cached reads of a property after its calendar changed.
type Invalidator interface {
	InvalidateProperty(ctx context.Context, orgID, propertyID int64) error
}

type Config struct {
	Topic      string
	RetryAfter time.Duration
	MaxNights  int
}

// Engine is the only writer of calendar state. Every command runs under the
// property lock in one transaction that updates the nights, appends the
// command log entry and enqueues the outbox event.
type Engine struct {
	store       repository.Store
	uow         *uow.UoW
	locker      lock.Locker
	evaluator   *restriction.Evaluator
	resolver    *pricing.Resolver
	invalidator Invalidator
	log         *slog.Logger
	cfg         Config
	now         func() time.Time
}

func New(
	store repository.Store,
	locker lock.Locker,
	evaluator *restriction.Evaluator,
	resolver *pricing.Resolver,
	invalidator Invalidator,
	log *slog.Logger,
	cfg Config,
) *Engine {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = time.Second
	}
	if cfg.MaxNights <= 0 {
		cfg.MaxNights = DefaultMaxNights
	}
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		store:       store,
		uow:         uow.NewUoW(store),
		locker:      locker,
		evaluator:   evaluator,
		resolver:    resolver,
		invalidator: invalidator,
		log:         log,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Execute applies cmd atomically. Business rejections are returned as
// *ConflictError, *restriction.Violation or ErrPropertyNotFound and are
// recorded in the command log with status REJECTED. A lock timeout returns
// *LockTimeoutError and is recorded as FAILED. An invalid command returns
// *domain.ValidationError and is logged as REJECTED when it names a property
// of its organization.
func (e *Engine) Execute(ctx context.Context, cmd Command) (Result, error) {
	const op = "service.calendar.Execute"

	if err := cmd.validate(e.cfg.MaxNights); err != nil {
		if cmd.OrganizationID > 0 && cmd.PropertyID > 0 {
			e.recordInvalid(ctx, cmd, err)
		}
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	id := uuid.New()
	var res Result

	err := e.locker.WithPropertyLock(ctx, cmd.PropertyID, func(ctx context.Context) error {
		err := e.uow.Do(ctx, cmd.OrganizationID, func(
			ctx context.Context,
			tx repository.Tx,
			after func(uow.AfterCommit),
		) error {
			r, err := e.apply(ctx, tx, id, cmd)
			if err != nil {
				return err
			}
			res = r

			if r.Status == domain.CommandExecuted {
				after(func(ctx context.Context) {
					if e.invalidator == nil {
						return
					}
					if err := e.invalidator.InvalidateProperty(ctx, cmd.OrganizationID, cmd.PropertyID); err != nil {
						e.log.Warn("cache invalidation failed",
							slog.Int64("property_id", cmd.PropertyID),
							slog.String("err", err.Error()),
						)
					}
				})
			}
			return nil
		})
		if reason, ok := rejection(err); ok {
			e.record(ctx, id, cmd, domain.CommandRejected, reason)
		}
		return err
	})

	switch {
	case err == nil:
		observability.ObserveCommand(string(cmd.Type), string(res.Status))
		e.log.Info("calendar command applied",
			slog.String("command_id", id.String()),
			slog.String("type", string(cmd.Type)),
			slog.Int64("property_id", cmd.PropertyID),
			slog.String("range", cmd.Range.String()),
			slog.String("status", string(res.Status)),
			slog.Int64("version", res.Version),
		)
		return res, nil

	case errors.Is(err, repository.ErrLockTimeout):
		e.record(context.WithoutCancel(ctx), id, cmd, domain.CommandFailed, reasonLockTimeout)
		observability.ObserveCommand(string(cmd.Type), string(domain.CommandFailed))
		return Result{}, fmt.Errorf("%s: %w", op, &LockTimeoutError{PropertyID: cmd.PropertyID, RetryAfter: e.cfg.RetryAfter})

	default:
		if _, ok := rejection(err); ok {
			observability.ObserveCommand(string(cmd.Type), string(domain.CommandRejected))
			e.log.Info("calendar command rejected",
				slog.String("command_id", id.String()),
				slog.String("type", string(cmd.Type)),
				slog.Int64("property_id", cmd.PropertyID),
				slog.String("reason", err.Error()),
			)
		} else {
			e.record(context.WithoutCancel(ctx), id, cmd, domain.CommandFailed, err.Error())
			observability.ObserveCommand(string(cmd.Type), string(domain.CommandFailed))
			e.log.Error("calendar command failed",
				slog.String("command_id", id.String()),
				slog.Int64("property_id", cmd.PropertyID),
				slog.String("err", err.Error()),
			)
		}
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
}

// rejection maps business outcomes to the reason stored with a REJECTED entry.
func rejection(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var (
		v *restriction.Violation
		c *ConflictError
	)
	switch {
	case errors.As(err, &v):
		return string(v.Code), true
	case errors.As(err, &c):
		return reasonStateConflict, true
	case errors.Is(err, ErrPropertyNotFound):
		return reasonPropertyNotFound, true
	}
	return "", false
}

// record appends a non-executed entry to the command log in its own
// transaction. Failure to record is logged, never returned.
func (e *Engine) record(ctx context.Context, id uuid.UUID, cmd Command, status domain.CommandStatus, reason string) {
	err := e.store.RunTx(ctx, cmd.OrganizationID, func(ctx context.Context, tx repository.Tx) error {
		return tx.AppendCommand(ctx, e.logEntry(id, cmd, status, reason))
	})
	if err != nil {
		e.log.Error("command log append failed",
			slog.String("command_id", id.String()),
			slog.String("status", string(status)),
			slog.String("err", err.Error()),
		)
	}
}

// recordInvalid logs a command that failed validation. Nothing is written
// when the property does not belong to the organization.
func (e *Engine) recordInvalid(ctx context.Context, cmd Command, cause error) {
	if cmd.Payload != nil && cmd.Payload.CommandType() != cmd.Type {
		cmd.Payload = nil
	}
	id := uuid.New()

	err := e.store.RunTx(ctx, cmd.OrganizationID, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Property(ctx, cmd.PropertyID); err != nil {
			return err
		}
		return tx.AppendCommand(ctx, e.logEntry(id, cmd, domain.CommandRejected, reasonValidation))
	})
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			e.log.Error("command log append failed",
				slog.String("command_id", id.String()),
				slog.String("status", string(domain.CommandRejected)),
				slog.String("err", err.Error()),
			)
		}
		return
	}

	if cmd.Type.Valid() {
		observability.ObserveCommand(string(cmd.Type), string(domain.CommandRejected))
	}
	e.log.Info("calendar command invalid",
		slog.String("command_id", id.String()),
		slog.Int64("property_id", cmd.PropertyID),
		slog.String("reason", cause.Error()),
	)
}

func (e *Engine) logEntry(id uuid.UUID, cmd Command, status domain.CommandStatus, reason string) domain.CalendarCommand {
	return domain.CalendarCommand{
		ID:             id,
		OrganizationID: cmd.OrganizationID,
		PropertyID:     cmd.PropertyID,
		Type:           cmd.Type,
		Range:          cmd.Range,
		Source:         cmd.Source,
		Actor:          cmd.Actor,
		Payload:        cmd.Payload,
		Status:         status,
		Reason:         reason,
		ExecutedAt:     e.now().UTC(),
	}
}

func (e *Engine) apply(ctx context.Context, tx repository.Tx, id uuid.UUID, cmd Command) (Result, error) {
	prop, err := tx.Property(ctx, cmd.PropertyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, ErrPropertyNotFound
		}
		return Result{}, err
	}

	stored, err := tx.CalendarDays(ctx, cmd.PropertyID, cmd.Range)
	if err != nil {
		return Result{}, err
	}
	days := domain.FillCalendar(prop, cmd.Range, stored)

	switch p := cmd.Payload.(type) {
	case domain.BookPayload:
		dup, err := e.isReplay(ctx, tx, prop, cmd.Range, days, p.ReservationID)
		if err != nil {
			return Result{}, err
		}
		if dup {
			if err := tx.AppendCommand(ctx, e.logEntry(id, cmd, domain.CommandDuplicate, "")); err != nil {
				return Result{}, err
			}
			return Result{CommandID: id, Status: domain.CommandDuplicate, Version: prop.CalendarVer, Days: days}, nil
		}
		if err := e.book(ctx, tx, cmd, p, days); err != nil {
			return Result{}, err
		}

	case domain.CancelPayload:
		for i := range days {
			d := &days[i]
			if d.Status != domain.DayBooked || d.ReservationID != p.ReservationID {
				return Result{}, &ConflictError{Date: d.Date, Status: d.Status, Reason: "not booked by reservation " + p.ReservationID}
			}
			d.Status = domain.DayAvailable
			d.ReservationID = ""
		}

	case domain.BlockPayload:
		target := domain.DayBlocked
		if p.Maintenance {
			target = domain.DayMaintenance
		}
		for i := range days {
			d := &days[i]
			if d.Status != domain.DayAvailable {
				return Result{}, &ConflictError{Date: d.Date, Status: d.Status, Reason: "night is not available"}
			}
			d.Status = target
		}

	case domain.UnblockPayload:
		for i := range days {
			d := &days[i]
			if d.Status != domain.DayBlocked && d.Status != domain.DayMaintenance {
				return Result{}, &ConflictError{Date: d.Date, Status: d.Status, Reason: "night is not blocked"}
			}
			d.Status = domain.DayAvailable
		}

	case domain.UpdatePricePayload:
		for i := range days {
			days[i].Price = p.Price.Round(2)
		}
	}

	for i := range days {
		days[i].Source = cmd.Source
	}

	if err := tx.SaveCalendarDays(ctx, days); err != nil {
		return Result{}, err
	}

	version, err := tx.NextCalendarVersion(ctx, cmd.PropertyID)
	if err != nil {
		return Result{}, err
	}

	if err := tx.AppendCommand(ctx, e.logEntry(id, cmd, domain.CommandExecuted, "")); err != nil {
		return Result{}, err
	}

	ev, err := e.event(id, cmd, days[0].Status, version)
	if err != nil {
		return Result{}, err
	}
	if err := tx.EnqueueOutbox(ctx, ev); err != nil {
		return Result{}, err
	}

	return Result{CommandID: id, Status: domain.CommandExecuted, Version: version, Days: days}, nil
}

// isReplay reports whether the exact range is already booked by the same
// reservation. A partial overlap with the reservation is not a replay.
func (e *Engine) isReplay(
	ctx context.Context,
	tx repository.Tx,
	prop domain.Property,
	r domain.DateRange,
	days []domain.CalendarDay,
	reservationID string,
) (bool, error) {
	for _, d := range days {
		if d.Status != domain.DayBooked || d.ReservationID != reservationID {
			return false, nil
		}
	}

	edges := []domain.DateRange{
		{CheckIn: r.CheckIn.AddDate(0, 0, -1), CheckOut: r.CheckIn},
		{CheckIn: r.CheckOut, CheckOut: r.CheckOut.AddDate(0, 0, 1)},
	}
	for _, edge := range edges {
		around, err := tx.CalendarDays(ctx, prop.ID, edge)
		if err != nil {
			return false, err
		}
		for _, d := range around {
			if d.Status == domain.DayBooked && d.ReservationID == reservationID {
				return false, nil
			}
		}
	}

	return true, nil
}

func (e *Engine) book(
	ctx context.Context,
	tx repository.Tx,
	cmd Command,
	p domain.BookPayload,
	days []domain.CalendarDay,
) error {
	for _, d := range days {
		if d.Status != domain.DayAvailable {
			return &ConflictError{Date: d.Date, Status: d.Status, Reason: "night is not available"}
		}
	}

	if !cmd.BypassRestrictions && e.evaluator != nil {
		err := e.evaluator.Evaluate(ctx, tx, restriction.Request{
			PropertyID: cmd.PropertyID,
			Range:      cmd.Range,
			Adults:     p.Adults,
			Children:   p.Children,
		})
		if err != nil {
			return err
		}
	}

	var prices map[time.Time]decimal.Decimal
	if e.resolver != nil {
		q, err := e.resolver.QuoteWith(ctx, tx, pricing.StayQuery{
			PropertyID: cmd.PropertyID,
			Range:      cmd.Range,
			Channel:    p.Channel,
			Adults:     p.Adults,
			Children:   p.Children,
		})
		if err != nil {
			return err
		}
		prices = make(map[time.Time]decimal.Decimal, len(q.Nights))
		for _, n := range q.Nights {
			prices[domain.Day(n.Date)] = n.Amount
		}
	}

	for i := range days {
		d := &days[i]
		d.Status = domain.DayBooked
		d.ReservationID = p.ReservationID
		if price, ok := prices[d.Date]; ok {
			d.Price = price
		}
	}

	return nil
}

// CalendarChanged is the payload of every calendar outbox event. It carries
// the range and the resulting state, not the nights; consumers read the
// calendar at Version when they need per-night detail.
type CalendarChanged struct {
	CommandID      uuid.UUID          `json:"command_id"`
	OrganizationID int64              `json:"organization_id"`
	PropertyID     int64              `json:"property_id"`
	CommandType    domain.CommandType `json:"command_type"`
	CheckIn        string             `json:"check_in"`
	CheckOut       string             `json:"check_out"`
	Nights         int                `json:"nights"`
	Status         domain.DayStatus   `json:"status,omitempty"`
	ReservationID  string             `json:"reservation_id,omitempty"`
	Price          *decimal.Decimal   `json:"price,omitempty"`
	Source         string             `json:"source"`
	Version        int64              `json:"version"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

func eventType(t domain.CommandType) string {
	switch t {
	case domain.CommandBook:
		return domain.EventCalendarBooked
	case domain.CommandCancel:
		return domain.EventCalendarCancelled
	case domain.CommandBlock:
		return domain.EventCalendarBlocked
	case domain.CommandUnblock:
		return domain.EventCalendarUnblocked
	}
	return domain.EventCalendarPriceUpdate
}

func (e *Engine) event(id uuid.UUID, cmd Command, status domain.DayStatus, version int64) (domain.OutboxEvent, error) {
	now := e.now().UTC()

	msg := CalendarChanged{
		CommandID:      id,
		OrganizationID: cmd.OrganizationID,
		PropertyID:     cmd.PropertyID,
		CommandType:    cmd.Type,
		CheckIn:        cmd.Range.CheckIn.Format(domain.DateLayout),
		CheckOut:       cmd.Range.CheckOut.Format(domain.DateLayout),
		Nights:         cmd.Range.Nights(),
		Status:         status,
		Source:         cmd.Source,
		Version:        version,
		OccurredAt:     now,
	}
	switch p := cmd.Payload.(type) {
	case domain.BookPayload:
		msg.ReservationID = p.ReservationID
	case domain.CancelPayload:
		msg.ReservationID = p.ReservationID
	case domain.UpdatePricePayload:
		price := p.Price.Round(2)
		msg.Price = &price
		msg.Status = ""
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return domain.OutboxEvent{}, err
	}

	key := strconv.FormatInt(cmd.PropertyID, 10)

	return domain.OutboxEvent{
		ID:             uuid.New(),
		OrganizationID: cmd.OrganizationID,
		AggregateType:  domain.AggregateProperty,
		AggregateID:    key,
		EventType:      eventType(cmd.Type),
		Topic:          e.cfg.Topic,
		PartitionKey:   key,
		Payload:        payload,
		Version:        version,
		Status:         domain.OutboxPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
	}, nil
}
