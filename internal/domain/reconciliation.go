package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReconciliationStatus string

const (
	ReconcileSuccess    ReconciliationStatus = "SUCCESS"
	ReconcileFailed     ReconciliationStatus = "FAILED"
	ReconcileDivergence ReconciliationStatus = "DIVERGENCE"
)

// ChannelConnection maps a property to its listing on an external channel.
type ChannelConnection struct {
	ID                int64  `json:"id"`
	OrganizationID    int64  `json:"organization_id"`
	PropertyID        int64  `json:"property_id"`
	Channel           string `json:"channel"`
	ExternalListingID string `json:"external_listing_id"`
	AutoFix           bool   `json:"auto_fix"`
	Active            bool   `json:"active"`
}

// ChannelCalendarDay is a channel's view of one night. Status is one of
// AVAILABLE, BOOKED or BLOCKED.
type ChannelCalendarDay struct {
	Date           time.Time `json:"date"`
	Status         DayStatus `json:"status"`
	ReservationRef string    `json:"reservation_ref,omitempty"`
}

type ReconciliationRun struct {
	ID                  uuid.UUID            `json:"id"`
	OrganizationID      int64                `json:"organization_id"`
	ConnectionID        int64                `json:"connection_id"`
	Channel             string               `json:"channel"`
	PropertyID          int64                `json:"property_id"`
	Range               DateRange            `json:"range"`
	PMSDaysChecked      int                  `json:"pms_days_checked"`
	ChannelDaysChecked  int                  `json:"channel_days_checked"`
	DiscrepanciesFound  int                  `json:"discrepancies_found"`
	DiscrepanciesFixed  int                  `json:"discrepancies_fixed"`
	DivergencePercent   decimal.Decimal      `json:"divergence_percent"`
	Status              ReconciliationStatus `json:"status"`
	ErrorMessage        string               `json:"error_message,omitempty"`
	StartedAt           time.Time            `json:"started_at"`
	FinishedAt          time.Time            `json:"finished_at"`
}
