package admin_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository/memory"
	"github.com/kirinyoku/calendar-engine/internal/service/admin"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	props []int64
}

func (r *recordingInvalidator) InvalidateProperty(ctx context.Context, orgID, propertyID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.props = append(r.props, propertyID)
	return nil
}

func TestService_RatePlanInvalidatesProperty(t *testing.T) {
	ctx := context.Background()
	inv := &recordingInvalidator{}
	svc := admin.New(memory.New(), inv, nil)

	propID, err := svc.CreateProperty(ctx, 1, domain.Property{Name: "Loft", Currency: "usd", NightlyPrice: decimal.NewFromInt(80)})
	require.NoError(t, err)
	assert.Empty(t, inv.props)

	_, err = svc.CreateRatePlan(ctx, 1, domain.RatePlan{
		PropertyID:   propID,
		Name:         "Summer",
		Type:         domain.PlanSeasonal,
		StartDate:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		NightlyPrice: decimal.NewFromInt(120),
		IsActive:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{propID}, inv.props)
}

func TestService_ForeignPropertyNotFound(t *testing.T) {
	ctx := context.Background()
	inv := &recordingInvalidator{}
	svc := admin.New(memory.New(), inv, nil)

	propID, err := svc.CreateProperty(ctx, 1, domain.Property{Name: "Loft", NightlyPrice: decimal.NewFromInt(80)})
	require.NoError(t, err)

	_, err = svc.SetRateOverride(ctx, 2, domain.RateOverride{
		PropertyID: propID,
		Date:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Price:      decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, admin.ErrPropertyNotFound)
	assert.Empty(t, inv.props)
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	svc := admin.New(memory.New(), nil, nil)

	_, err := svc.CreateProperty(ctx, 1, domain.Property{Name: " "})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)

	minStay, maxStay := 5, 2
	_, err = svc.CreateRestriction(ctx, 1, domain.BookingRestriction{
		PropertyID: 1,
		StartDate:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		MinStay:    &minStay,
		MaxStay:    &maxStay,
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "max_stay", verr.Field)
}

func TestService_ConnectChannelConflict(t *testing.T) {
	ctx := context.Background()
	svc := admin.New(memory.New(), nil, nil)

	propID, err := svc.CreateProperty(ctx, 1, domain.Property{Name: "Loft", NightlyPrice: decimal.NewFromInt(80)})
	require.NoError(t, err)

	conn := domain.ChannelConnection{PropertyID: propID, Channel: "Airbnb", ExternalListingID: "A1", Active: true}
	_, err = svc.ConnectChannel(ctx, 1, conn)
	require.NoError(t, err)

	_, err = svc.ConnectChannel(ctx, 1, conn)
	assert.ErrorIs(t, err, admin.ErrConnectionConflict)
}
