package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RatePlanType string

const (
	PlanBase           RatePlanType = "BASE"
	PlanSeasonal       RatePlanType = "SEASONAL"
	PlanPromotional    RatePlanType = "PROMOTIONAL"
	PlanLastMinute     RatePlanType = "LAST_MINUTE"
	PlanEarlyBird      RatePlanType = "EARLY_BIRD"
	PlanWeekend        RatePlanType = "WEEKEND"
	PlanLongStay       RatePlanType = "LONG_STAY"
	PlanOccupancyBased RatePlanType = "OCCUPANCY_BASED"
	PlanEvent          RatePlanType = "EVENT"
)

// Tier ranks plan types; only plans of the highest tier present on a date
// compete for the base price. Unknown types rank below BASE.
func (t RatePlanType) Tier() int {
	switch t {
	case PlanPromotional, PlanEvent:
		return 5
	case PlanSeasonal, PlanWeekend:
		return 4
	case PlanEarlyBird, PlanLastMinute:
		return 3
	case PlanLongStay, PlanOccupancyBased:
		return 2
	case PlanBase:
		return 1
	}
	return 0
}

type RatePlan struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	PropertyID     int64           `json:"property_id"`
	Name           string          `json:"name"`
	Type           RatePlanType    `json:"type"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	DaysOfWeek     Weekdays        `json:"days_of_week,omitempty"`
	NightlyPrice   decimal.Decimal `json:"nightly_price"`
	Priority       int             `json:"priority"`
	IsActive       bool            `json:"is_active"`
}

func (p RatePlan) AppliesTo(d time.Time) bool {
	d = Day(d)
	if !p.IsActive {
		return false
	}
	if d.Before(Day(p.StartDate)) || d.After(Day(p.EndDate)) {
		return false
	}
	return p.DaysOfWeek.Matches(d)
}

type RateOverride struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	PropertyID     int64           `json:"property_id"`
	Date           time.Time       `json:"date"`
	Price          decimal.Decimal `json:"price"`
}

type AdjustmentType string

const (
	AdjustPercentage    AdjustmentType = "PERCENTAGE"
	AdjustFixedAmount   AdjustmentType = "FIXED_AMOUNT"
	AdjustFixedPerNight AdjustmentType = "FIXED_PER_NIGHT"
)

type ChannelRateModifier struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	PropertyID     *int64          `json:"property_id,omitempty"`
	Channel        string          `json:"channel"`
	Type           AdjustmentType  `json:"type"`
	Value          decimal.Decimal `json:"value"`
	Priority       int             `json:"priority"`
	IsActive       bool            `json:"is_active"`
	Validity
}

func (m ChannelRateModifier) AppliesTo(channel string, d time.Time) bool {
	return m.IsActive && channel != "" && m.Channel == channel && m.Covers(d)
}

type LengthOfStayDiscount struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	PropertyID     *int64          `json:"property_id,omitempty"`
	MinNights      int             `json:"min_nights"`
	MaxNights      *int            `json:"max_nights,omitempty"`
	Type           AdjustmentType  `json:"type"`
	Value          decimal.Decimal `json:"value"`
	Priority       int             `json:"priority"`
	IsActive       bool            `json:"is_active"`
	Validity
}

func (l LengthOfStayDiscount) AppliesTo(nights int, d time.Time) bool {
	if !l.IsActive || nights < l.MinNights {
		return false
	}
	if l.MaxNights != nil && nights > *l.MaxNights {
		return false
	}
	return l.Covers(d)
}

type OccupancyPricing struct {
	ID             int64           `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	PropertyID     *int64          `json:"property_id,omitempty"`
	BaseOccupancy  int             `json:"base_occupancy"`
	MaxOccupancy   int             `json:"max_occupancy"`
	ExtraGuestFee  decimal.Decimal `json:"extra_guest_fee"`
	// ExtraChildFee, when set, replaces the discounted guest fee for children.
	ExtraChildFee        *decimal.Decimal `json:"extra_child_fee,omitempty"`
	ChildDiscountPercent decimal.Decimal  `json:"child_discount_percent"`
	IsActive             bool             `json:"is_active"`
	Validity
}

type YieldRuleType string

const (
	YieldOccupancyThreshold YieldRuleType = "OCCUPANCY_THRESHOLD"
	YieldDaysBeforeArrival  YieldRuleType = "DAYS_BEFORE_ARRIVAL"
	YieldLastMinuteFill     YieldRuleType = "LAST_MINUTE_FILL"
	YieldGapFill            YieldRuleType = "GAP_FILL"
)

// YieldTrigger is the condition that activates a yield rule. Each rule type
// has one trigger variant.
type YieldTrigger interface {
	YieldType() YieldRuleType
}

// OccupancyThreshold fires when the share of booked nights in
// [date, date+WindowDays) lies within [MinPercent, MaxPercent].
type OccupancyThreshold struct {
	WindowDays int             `json:"window_days"`
	MinPercent decimal.Decimal `json:"min_percent"`
	MaxPercent decimal.Decimal `json:"max_percent"`
}

// DaysBeforeArrival fires when the lead time in days lies within [MinDays, MaxDays].
type DaysBeforeArrival struct {
	MinDays int `json:"min_days"`
	MaxDays int `json:"max_days"`
}

// LastMinuteFill fires for still-available nights at most WithinDays away.
type LastMinuteFill struct {
	WithinDays int `json:"within_days"`
}

// GapFill fires for available nights inside a gap of at most MaxGapNights
// between two unavailable nights.
type GapFill struct {
	MaxGapNights int `json:"max_gap_nights"`
}

func (OccupancyThreshold) YieldType() YieldRuleType { return YieldOccupancyThreshold }
func (DaysBeforeArrival) YieldType() YieldRuleType  { return YieldDaysBeforeArrival }
func (LastMinuteFill) YieldType() YieldRuleType     { return YieldLastMinuteFill }
func (GapFill) YieldType() YieldRuleType            { return YieldGapFill }

func DecodeYieldTrigger(t YieldRuleType, raw []byte) (YieldTrigger, error) {
	switch t {
	case YieldOccupancyThreshold:
		var v OccupancyThreshold
		err := unmarshalOptional(raw, &v)
		return v, err
	case YieldDaysBeforeArrival:
		var v DaysBeforeArrival
		err := unmarshalOptional(raw, &v)
		return v, err
	case YieldLastMinuteFill:
		var v LastMinuteFill
		err := unmarshalOptional(raw, &v)
		return v, err
	case YieldGapFill:
		var v GapFill
		err := unmarshalOptional(raw, &v)
		return v, err
	}
	return nil, fmt.Errorf("unknown yield rule type %q", t)
}

func EncodeYieldTrigger(t YieldTrigger) (YieldRuleType, []byte, error) {
	if t == nil {
		return "", nil, fmt.Errorf("yield trigger is nil")
	}
	b, err := json.Marshal(t)
	return t.YieldType(), b, err
}

type YieldRule struct {
	ID             int64            `json:"id"`
	OrganizationID int64            `json:"organization_id"`
	PropertyID     *int64           `json:"property_id,omitempty"`
	Name           string           `json:"name"`
	Trigger        YieldTrigger     `json:"trigger"`
	Adjustment     AdjustmentType   `json:"adjustment"`
	Value          decimal.Decimal  `json:"value"`
	MinPrice       *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice       *decimal.Decimal `json:"max_price,omitempty"`
	Priority       int              `json:"priority"`
	IsActive       bool             `json:"is_active"`
	Validity
}
