package calendar

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// SourceReconciliation marks commands issued to repair channel divergence.
const SourceReconciliation = "reconciliation"

// DefaultMaxNights caps the range of a single command.
const DefaultMaxNights = 366

type Command struct {
	OrganizationID int64
	PropertyID     int64
	Type           domain.CommandType
	Range          domain.DateRange
	Source         string
	Actor          string
	Payload        domain.CommandPayload

	// BypassRestrictions skips restriction evaluation for BOOK. The channel
	// that took the booking has already applied its own rules.
	BypassRestrictions bool
}

type Result struct {
	CommandID uuid.UUID            `json:"command_id"`
	Status    domain.CommandStatus `json:"status"`
	Version   int64                `json:"version,omitempty"`
	Days      []domain.CalendarDay `json:"days,omitempty"`
}

func (c *Command) validate(maxNights int) error {
	if c.Source == "" {
		c.Source = "api"
	}
	if c.Actor == "" {
		c.Actor = "system"
	}

	if c.OrganizationID <= 0 {
		return domain.Invalid("organization_id", "must be positive")
	}
	if c.PropertyID <= 0 {
		return domain.Invalid("property_id", "must be positive")
	}
	if !c.Type.Valid() {
		return domain.Invalid("type", "unknown command type")
	}

	c.Range.CheckIn = domain.Day(c.Range.CheckIn)
	c.Range.CheckOut = domain.Day(c.Range.CheckOut)
	if err := c.Range.Validate(); err != nil {
		return domain.Invalid("range", err.Error())
	}
	if maxNights > 0 && c.Range.Nights() > maxNights {
		return domain.Invalid("range", fmt.Sprintf("must not exceed %d nights", maxNights))
	}

	if c.Payload == nil {
		switch c.Type {
		case domain.CommandBlock:
			c.Payload = domain.BlockPayload{}
		case domain.CommandUnblock:
			c.Payload = domain.UnblockPayload{}
		default:
			return domain.Invalid("payload", "is required")
		}
	}
	if c.Payload.CommandType() != c.Type {
		return domain.Invalid("payload", "does not match command type")
	}

	switch p := c.Payload.(type) {
	case domain.BookPayload:
		if strings.TrimSpace(p.ReservationID) == "" {
			return domain.Invalid("reservation_id", "is required")
		}
		if p.Adults < 0 || p.Children < 0 {
			return domain.Invalid("guests", "must not be negative")
		}
	case domain.CancelPayload:
		if strings.TrimSpace(p.ReservationID) == "" {
			return domain.Invalid("reservation_id", "is required")
		}
	case domain.UpdatePricePayload:
		if p.Price.IsNegative() {
			return domain.Invalid("price", "must not be negative")
		}
	}

	return nil
}
