package httpgin

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// CommandRequest carries one calendar command. Fields other than type and
// dates are read according to the type.
type CommandRequest struct {
	Type          string           `json:"type" binding:"required,oneof=BOOK CANCEL BLOCK UNBLOCK UPDATE_PRICE"`
	CheckIn       string           `json:"check_in" binding:"required"`
	CheckOut      string           `json:"check_out" binding:"required"`
	Actor         string           `json:"actor"`
	Source        string           `json:"source"`
	ReservationID string           `json:"reservation_id"`
	Channel       string           `json:"channel"`
	Adults        int              `json:"adults" binding:"gte=0"`
	Children      int              `json:"children" binding:"gte=0"`
	Reason        string           `json:"reason"`
	Maintenance   bool             `json:"maintenance"`
	Price         *decimal.Decimal `json:"price"`
}

func (r CommandRequest) payload() domain.CommandPayload {
	switch domain.CommandType(r.Type) {
	case domain.CommandBook:
		return domain.BookPayload{ReservationID: r.ReservationID, Channel: r.Channel, Adults: r.Adults, Children: r.Children}
	case domain.CommandCancel:
		return domain.CancelPayload{ReservationID: r.ReservationID}
	case domain.CommandBlock:
		return domain.BlockPayload{Reason: r.Reason, Maintenance: r.Maintenance}
	case domain.CommandUnblock:
		return domain.UnblockPayload{Reason: r.Reason}
	case domain.CommandUpdatePrice:
		if r.Price == nil {
			return nil
		}
		return domain.UpdatePricePayload{Price: *r.Price}
	}
	return nil
}

type CreatePropertyRequest struct {
	Name         string          `json:"name" binding:"required"`
	Currency     string          `json:"currency"`
	NightlyPrice decimal.Decimal `json:"nightly_price"`
}

type RatePlanRequest struct {
	Name         string          `json:"name" binding:"required"`
	Type         string          `json:"type" binding:"required"`
	StartDate    string          `json:"start_date" binding:"required"`
	EndDate      string          `json:"end_date" binding:"required"`
	DaysOfWeek   []int           `json:"days_of_week" binding:"dive,gte=0,lte=6"`
	NightlyPrice decimal.Decimal `json:"nightly_price"`
	Priority     int             `json:"priority"`
	Inactive     bool            `json:"inactive"`
}

type OverrideRequest struct {
	Price decimal.Decimal `json:"price"`
}

type RestrictionRequest struct {
	StartDate         string `json:"start_date" binding:"required"`
	EndDate           string `json:"end_date" binding:"required"`
	DaysOfWeek        []int  `json:"days_of_week" binding:"dive,gte=0,lte=6"`
	ArrivalDays       []int  `json:"arrival_days" binding:"dive,gte=0,lte=6"`
	MinStay           *int   `json:"min_stay"`
	MaxStay           *int   `json:"max_stay"`
	ClosedToArrival   bool   `json:"closed_to_arrival"`
	ClosedToDeparture bool   `json:"closed_to_departure"`
	GapDays           int    `json:"gap_days"`
	AdvanceNoticeDays int    `json:"advance_notice_days"`
	Priority          int    `json:"priority"`
}

// ValidityRequest is an optional activation window in YYYY-MM-DD.
type ValidityRequest struct {
	ValidFrom string `json:"valid_from"`
	ValidTo   string `json:"valid_to"`
}

type ChannelModifierRequest struct {
	PropertyID *int64          `json:"property_id"`
	Channel    string          `json:"channel" binding:"required"`
	Type       string          `json:"type" binding:"required"`
	Value      decimal.Decimal `json:"value"`
	Priority   int             `json:"priority"`
	ValidityRequest
}

type LengthOfStayRequest struct {
	PropertyID *int64          `json:"property_id"`
	MinNights  int             `json:"min_nights" binding:"required,gte=1"`
	MaxNights  *int            `json:"max_nights"`
	Type       string          `json:"type" binding:"required"`
	Value      decimal.Decimal `json:"value"`
	Priority   int             `json:"priority"`
	ValidityRequest
}

type OccupancyRequest struct {
	PropertyID           *int64           `json:"property_id"`
	BaseOccupancy        int              `json:"base_occupancy" binding:"required,gte=1"`
	MaxOccupancy         int              `json:"max_occupancy" binding:"required,gte=1"`
	ExtraGuestFee        decimal.Decimal  `json:"extra_guest_fee"`
	ExtraChildFee        *decimal.Decimal `json:"extra_child_fee"`
	ChildDiscountPercent decimal.Decimal  `json:"child_discount_percent"`
	ValidityRequest
}

type YieldRuleRequest struct {
	PropertyID *int64           `json:"property_id"`
	Name       string           `json:"name" binding:"required"`
	Type       string           `json:"type" binding:"required"`
	Trigger    json.RawMessage  `json:"trigger"`
	Adjustment string           `json:"adjustment" binding:"required"`
	Value      decimal.Decimal  `json:"value"`
	MinPrice   *decimal.Decimal `json:"min_price"`
	MaxPrice   *decimal.Decimal `json:"max_price"`
	Priority   int              `json:"priority"`
	ValidityRequest
}

type ConnectionRequest struct {
	Channel           string `json:"channel" binding:"required"`
	ExternalListingID string `json:"external_listing_id" binding:"required"`
	AutoFix           bool   `json:"auto_fix"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

type CreatedResponse struct {
	ID int64 `json:"id"`
}

func parseDate(s string) (time.Time, error) {
	return domain.ParseDate(s)
}

func parseWeekdays(days []int) domain.Weekdays {
	if len(days) == 0 {
		return nil
	}
	out := make(domain.Weekdays, 0, len(days))
	for _, d := range days {
		out = append(out, time.Weekday(d))
	}
	return out
}

func (v ValidityRequest) validity() (domain.Validity, error) {
	var out domain.Validity
	if v.ValidFrom != "" {
		t, err := parseDate(v.ValidFrom)
		if err != nil {
			return out, err
		}
		out.ValidFrom = &t
	}
	if v.ValidTo != "" {
		t, err := parseDate(v.ValidTo)
		if err != nil {
			return out, err
		}
		out.ValidTo = &t
	}
	return out, nil
}
