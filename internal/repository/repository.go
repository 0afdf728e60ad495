package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// CalendarReader reads property calendar state for one organization.
type CalendarReader interface {
	Property(ctx context.Context, propertyID int64) (domain.Property, error)
	CalendarDays(ctx context.Context, propertyID int64, r domain.DateRange) ([]domain.CalendarDay, error)
}

type RestrictionReader interface {
	Restrictions(ctx context.Context, propertyID int64, date time.Time) ([]domain.BookingRestriction, error)
}

// PricingReader loads the rules the price resolver composes. RateOverride
// returns ErrNotFound when no override exists for the date.
type PricingReader interface {
	RateOverride(ctx context.Context, propertyID int64, date time.Time) (domain.RateOverride, error)
	RatePlans(ctx context.Context, propertyID int64, date time.Time) ([]domain.RatePlan, error)
	ChannelModifiers(ctx context.Context, propertyID int64, channel string) ([]domain.ChannelRateModifier, error)
	OccupancyPricing(ctx context.Context, propertyID int64) ([]domain.OccupancyPricing, error)
	LengthOfStayDiscounts(ctx context.Context, propertyID int64) ([]domain.LengthOfStayDiscount, error)
	YieldRules(ctx context.Context, propertyID int64) ([]domain.YieldRule, error)
}

type CommandReader interface {
	Commands(ctx context.Context, propertyID int64, limit int) ([]domain.CalendarCommand, error)
}

// CalendarWriter is the only mutation path for calendar state. The command log
// is insert-only: there is no update or delete method for it.
type CalendarWriter interface {
	SaveCalendarDays(ctx context.Context, days []domain.CalendarDay) error
	NextCalendarVersion(ctx context.Context, propertyID int64) (int64, error)
	AppendCommand(ctx context.Context, cmd domain.CalendarCommand) error
	EnqueueOutbox(ctx context.Context, ev domain.OutboxEvent) error
}

// AdminWriter manages properties, pricing rules, restrictions and channel
// connections.
type AdminWriter interface {
	CreateProperty(ctx context.Context, p domain.Property) (int64, error)
	CreateRatePlan(ctx context.Context, p domain.RatePlan) (int64, error)
	UpsertRateOverride(ctx context.Context, o domain.RateOverride) (int64, error)
	CreateRestriction(ctx context.Context, r domain.BookingRestriction) (int64, error)
	CreateChannelModifier(ctx context.Context, m domain.ChannelRateModifier) (int64, error)
	CreateLengthOfStayDiscount(ctx context.Context, l domain.LengthOfStayDiscount) (int64, error)
	CreateOccupancyPricing(ctx context.Context, o domain.OccupancyPricing) (int64, error)
	CreateYieldRule(ctx context.Context, y domain.YieldRule) (int64, error)
	CreateChannelConnection(ctx context.Context, c domain.ChannelConnection) (int64, error)
}

type ReconciliationWriter interface {
	ChannelConnection(ctx context.Context, id int64) (domain.ChannelConnection, error)
	SaveReconciliationRun(ctx context.Context, run domain.ReconciliationRun) error
}

// Tx is the organization-scoped view of the store. Every query it issues is
// filtered by the organization it was opened for.
type Tx interface {
	CalendarReader
	RestrictionReader
	PricingReader
	CommandReader
	CalendarWriter
	AdminWriter
	ReconciliationWriter
}

// Store opens organization-scoped transactions. Tenant returns a
// non-transactional scoped view for reads and single-statement writes.
type Store interface {
	RunTx(ctx context.Context, orgID int64, fn func(ctx context.Context, tx Tx) error) error
	Tenant(orgID int64) Tx
}

// OutboxStore is used by the relay across all organizations.
type OutboxStore interface {
	ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	MarkOutboxRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string, next time.Time) error
	MarkOutboxFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error
}

// ChannelDirectory lists channel connections across all organizations.
type ChannelDirectory interface {
	ActiveChannelConnections(ctx context.Context) ([]domain.ChannelConnection, error)
}
