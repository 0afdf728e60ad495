package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// Query is the context of one night's price. Nights is the length of the
// whole stay and drives length-of-stay discounts; it defaults to 1.
type Query struct {
	PropertyID int64
	Date       time.Time
	Channel    string
	Adults     int
	Children   int
	Nights     int
}

type StayQuery struct {
	PropertyID int64
	Range      domain.DateRange
	Channel    string
	Adults     int
	Children   int
}

type Step string

const (
	StepOverride  Step = "override"
	StepRatePlan  Step = "rate_plan"
	StepProperty  Step = "property_default"
	StepChannel   Step = "channel_modifier"
	StepOccupancy Step = "occupancy"
	StepStay      Step = "length_of_stay"
	StepYield     Step = "yield"
)

// Adjustment records one step of a resolution and the price after it.
type Adjustment struct {
	Step   Step            `json:"step"`
	RuleID int64           `json:"rule_id,omitempty"`
	Detail string          `json:"detail,omitempty"`
	Delta  decimal.Decimal `json:"delta"`
	Price  decimal.Decimal `json:"price"`
}

type NightPrice struct {
	PropertyID int64           `json:"property_id"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Breakdown  []Adjustment    `json:"breakdown"`
}

type Quote struct {
	PropertyID int64            `json:"property_id"`
	Range      domain.DateRange `json:"range"`
	Currency   string           `json:"currency"`
	Nights     []NightPrice     `json:"nights"`
	Total      decimal.Decimal  `json:"total"`
}
