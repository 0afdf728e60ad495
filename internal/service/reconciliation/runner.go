package reconciliation

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

	"github.com/kirinyoku/calendar-engine/internal/channel"
	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/observability"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	"github.com/kirinyoku/calendar-engine/internal/service/calendar"
)

var (
	ErrConnectionNotFound = errors.New("channel connection not found")
	ErrConnectionInactive = errors.New("channel connection is inactive")
	ErrNoChannelAdapter   = errors.New("no channel calendar adapter configured")
)

// Executor applies corrective calendar commands.
type Executor interface {
	Execute(ctx context.Context, cmd calendar.Command) (calendar.Result, error)
}

type Config struct {
	Interval     time.Duration
	HorizonDays  int
	ThresholdPct decimal.Decimal
	Topic        string
}

// Runner compares the PMS calendar with each channel's view and repairs the
// channel-originated differences through the calendar engine.
type Runner struct {
	store    repository.Store
	dir      repository.ChannelDirectory
	channels channel.Calendar
	exec     Executor
	log      *slog.Logger
	cfg      Config
	now      func() time.Time
}

func New(
	store repository.Store,
	dir repository.ChannelDirectory,
	channels channel.Calendar,
	exec Executor,
	log *slog.Logger,
	cfg Config,
) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 365
	}
	if cfg.ThresholdPct.IsZero() {
		cfg.ThresholdPct = decimal.NewFromInt(5)
	}
	if cfg.Topic == "" {
		cfg.Topic = calendar.DefaultTopic
	}
	if log == nil {
		log = slog.Default()
	}

	return &Runner{
		store:    store,
		dir:      dir,
		channels: channels,
		exec:     exec,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for the horizon and run timestamps.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Schedule runs RunAll on every interval until ctx is done.
func (r *Runner) Schedule(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunAll(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("reconciliation sweep failed", slog.String("err", err.Error()))
			}
		}
	}
}

// RunAll reconciles every active connection in turn. A failed run is recorded
// and logged and does not stop the sweep.
func (r *Runner) RunAll(ctx context.Context) ([]domain.ReconciliationRun, error) {
	const op = "service.reconciliation.RunAll"

	conns, err := r.dir.ActiveChannelConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	runs := make([]domain.ReconciliationRun, 0, len(conns))
	for _, conn := range conns {
		if ctx.Err() != nil {
			return runs, ctx.Err()
		}
		run, err := r.Run(ctx, conn)
		if err != nil {
			r.log.Warn("reconciliation run failed",
				slog.Int64("connection_id", conn.ID),
				slog.String("channel", conn.Channel),
				slog.String("err", err.Error()),
			)
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// RunConnection loads one connection of orgID and reconciles it.
func (r *Runner) RunConnection(ctx context.Context, orgID, connectionID int64) (domain.ReconciliationRun, error) {
	const op = "service.reconciliation.RunConnection"

	conn, err := r.store.Tenant(orgID).ChannelConnection(ctx, connectionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ReconciliationRun{}, fmt.Errorf("%s: %w", op, ErrConnectionNotFound)
		}
		return domain.ReconciliationRun{}, fmt.Errorf("%s: %w", op, err)
	}
	if !conn.Active {
		return domain.ReconciliationRun{}, fmt.Errorf("%s: %w", op, ErrConnectionInactive)
	}

	return r.Run(ctx, conn)
}

// Run reconciles one connection over the horizon starting today. The run is
// always persisted; a returned error means its status is FAILED.
func (r *Runner) Run(ctx context.Context, conn domain.ChannelConnection) (domain.ReconciliationRun, error) {
	const op = "service.reconciliation.Run"

	started := r.now().UTC()
	today := domain.Day(started)

	run := domain.ReconciliationRun{
		ID:                uuid.New(),
		OrganizationID:    conn.OrganizationID,
		ConnectionID:      conn.ID,
		Channel:           conn.Channel,
		PropertyID:        conn.PropertyID,
		Range:             domain.DateRange{CheckIn: today, CheckOut: today.AddDate(0, 0, r.cfg.HorizonDays)},
		DivergencePercent: decimal.Zero,
		StartedAt:         started,
	}

	err := r.reconcile(ctx, conn, &run)
	if err != nil {
		run.Status = domain.ReconcileFailed
		run.ErrorMessage = err.Error()
	}
	run.FinishedAt = r.now().UTC()

	observability.ObserveReconciliation(conn.Channel, string(run.Status), run.DiscrepanciesFound, run.DiscrepanciesFixed)

	if serr := r.store.Tenant(conn.OrganizationID).SaveReconciliationRun(context.WithoutCancel(ctx), run); serr != nil {
		r.log.Error("reconciliation run not saved",
			slog.String("run_id", run.ID.String()),
			slog.String("err", serr.Error()),
		)
	}

	r.log.Info("reconciliation finished",
		slog.String("run_id", run.ID.String()),
		slog.String("channel", conn.Channel),
		slog.Int64("property_id", conn.PropertyID),
		slog.Int("found", run.DiscrepanciesFound),
		slog.Int("fixed", run.DiscrepanciesFixed),
		slog.String("divergence_pct", run.DivergencePercent.StringFixed(2)),
		slog.String("status", string(run.Status)),
	)

	if err != nil {
		return run, fmt.Errorf("%s: %w", op, err)
	}
	return run, nil
}

func (r *Runner) reconcile(ctx context.Context, conn domain.ChannelConnection, run *domain.ReconciliationRun) error {
	if r.channels == nil {
		return ErrNoChannelAdapter
	}

	tenant := r.store.Tenant(conn.OrganizationID)

	prop, err := tenant.Property(ctx, conn.PropertyID)
	if err != nil {
		return fmt.Errorf("load property: %w", err)
	}
	stored, err := tenant.CalendarDays(ctx, conn.PropertyID, run.Range)
	if err != nil {
		return fmt.Errorf("load calendar: %w", err)
	}
	pms := domain.FillCalendar(prop, run.Range, stored)

	ch, err := r.channels.FetchChannelCalendar(ctx, conn, run.Range)
	if err != nil {
		return fmt.Errorf("fetch channel calendar: %w", err)
	}

	run.PMSDaysChecked = len(pms)
	run.ChannelDaysChecked = len(ch)

	diffs := compare(pms, ch)
	run.DiscrepanciesFound = len(diffs)

	if conn.AutoFix && r.exec != nil {
		for _, g := range group(diffs) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := r.fix(ctx, conn, g); err != nil {
				r.log.Warn("reconciliation fix rejected",
					slog.String("channel", conn.Channel),
					slog.Int64("property_id", conn.PropertyID),
					slog.String("range", g.rng.String()),
					slog.String("err", err.Error()),
				)
				continue
			}
			run.DiscrepanciesFixed += len(g.dates)
		}
	}

	if unfixable := pmsAhead(diffs); len(unfixable) > 0 {
		if err := r.requestResync(ctx, conn, run.ID, unfixable); err != nil {
			return fmt.Errorf("request resync: %w", err)
		}
	}

	run.DivergencePercent = divergence(run.DiscrepanciesFound-run.DiscrepanciesFixed, run.PMSDaysChecked)
	run.Status = domain.ReconcileSuccess
	if run.DivergencePercent.GreaterThan(r.cfg.ThresholdPct) {
		run.Status = domain.ReconcileDivergence
	}

	return nil
}

func (r *Runner) fix(ctx context.Context, conn domain.ChannelConnection, g fixGroup) error {
	cmd := calendar.Command{
		OrganizationID: conn.OrganizationID,
		PropertyID:     conn.PropertyID,
		Range:          g.rng,
		Source:         calendar.SourceReconciliation,
		Actor:          "channel:" + conn.Channel,
	}

	switch g.kind {
	case fixBook:
		ref := g.ref
		if ref == "" {
			ref = fmt.Sprintf("%s:%s:%s", conn.Channel, conn.ExternalListingID, g.rng.CheckIn.Format(domain.DateLayout))
		}
		cmd.Type = domain.CommandBook
		cmd.Payload = domain.BookPayload{ReservationID: ref, Channel: conn.Channel}
		cmd.BypassRestrictions = true
	case fixBlock:
		cmd.Type = domain.CommandBlock
		cmd.Payload = domain.BlockPayload{Reason: "blocked on " + conn.Channel}
	case fixUnblock:
		cmd.Type = domain.CommandUnblock
		cmd.Payload = domain.UnblockPayload{Reason: "open on " + conn.Channel}
	default:
		return nil
	}

	res, err := r.exec.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if res.Status != domain.CommandExecuted {
		return fmt.Errorf("command %s ended %s", res.CommandID, res.Status)
	}
	return nil
}

// pmsAhead lists the divergent nights that only the channel can repair.
func pmsAhead(ds []discrepancy) []time.Time {
	var out []time.Time
	for _, d := range ds {
		if d.fix == fixNone {
			out = append(out, d.date)
		}
	}
	return out
}

// ResyncRequested asks the channel sync consumers to push the PMS state of
// the listed nights to the channel.
type ResyncRequested struct {
	RunID        uuid.UUID `json:"run_id"`
	ConnectionID int64     `json:"connection_id"`
	Channel      string    `json:"channel"`
	PropertyID   int64     `json:"property_id"`
	Dates        []string  `json:"dates"`
	RequestedAt  time.Time `json:"requested_at"`
}

func (r *Runner) requestResync(ctx context.Context, conn domain.ChannelConnection, runID uuid.UUID, dates []time.Time) error {
	now := r.now().UTC()

	ev := ResyncRequested{
		RunID:        runID,
		ConnectionID: conn.ID,
		Channel:      conn.Channel,
		PropertyID:   conn.PropertyID,
		Dates:        make([]string, 0, len(dates)),
		RequestedAt:  now,
	}
	for _, d := range dates {
		ev.Dates = append(ev.Dates, d.Format(domain.DateLayout))
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	key := strconv.FormatInt(conn.PropertyID, 10)

	return r.store.RunTx(ctx, conn.OrganizationID, func(ctx context.Context, tx repository.Tx) error {
		prop, err := tx.Property(ctx, conn.PropertyID)
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, domain.OutboxEvent{
			ID:             uuid.New(),
			OrganizationID: conn.OrganizationID,
			AggregateType:  domain.AggregateProperty,
			AggregateID:    key,
			EventType:      domain.EventCalendarResync,
			Topic:          r.cfg.Topic,
			PartitionKey:   key,
			Payload:        payload,
			Version:        prop.CalendarVer,
			Status:         domain.OutboxPending,
			NextAttemptAt:  now,
			CreatedAt:      now,
		})
	})
}

func divergence(unfixed, checked int) decimal.Decimal {
	if checked == 0 || unfixed <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(unfixed)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(checked))).
		Round(2)
}
