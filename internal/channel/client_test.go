package channel_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/calendar-engine/internal/channel"
	"github.com/kirinyoku/calendar-engine/internal/domain"
)

func stayRange(t *testing.T) domain.DateRange {
	t.Helper()
	r, err := domain.NewDateRange(
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return r
}

func TestClient_FetchChannelCalendar_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/airbnb/listings/L-1/calendar", r.URL.Path)
		assert.Equal(t, "2026-03-01", r.URL.Query().Get("from"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"days": []map[string]string{
				{"date": "2026-03-01", "status": "reserved", "reservation_ref": "HM-1"},
				{"date": "2026-03-02", "status": "closed"},
				{"date": "2026-03-09", "status": "booked"},
			},
		})
	}))
	defer ts.Close()

	cl, err := channel.NewClient(ts.URL, "secret", 100)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	days, err := cl.FetchChannelCalendar(ctx, domain.ChannelConnection{
		Channel: "airbnb", ExternalListingID: "L-1",
	}, stayRange(t))
	require.NoError(t, err)

	require.Len(t, days, 2)
	assert.Equal(t, domain.DayBooked, days[0].Status)
	assert.Equal(t, "HM-1", days[0].ReservationRef)
	assert.Equal(t, domain.DayBlocked, days[1].Status)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&hits), int32(3))
}

func TestClient_FetchChannelCalendar_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cl, err := channel.NewClient(ts.URL, "", 100)
	require.NoError(t, err)

	_, err = cl.FetchChannelCalendar(context.Background(), domain.ChannelConnection{
		Channel: "vrbo", ExternalListingID: "x",
	}, stayRange(t))

	assert.ErrorIs(t, err, channel.ErrNotFound)
}

func TestClient_FetchChannelCalendar_Malformed(t *testing.T) {
	tests := []struct {
		name string
		day  map[string]string
	}{
		{"unknown status", map[string]string{"date": "2026-03-02", "status": "OCCUPIED"}},
		{"empty status", map[string]string{"date": "2026-03-02", "status": ""}},
		{"bad date", map[string]string{"date": "02/03/2026", "status": "available"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"days": []map[string]string{{"date": "2026-03-01", "status": "open"}, tt.day},
				})
			}))
			defer ts.Close()

			cl, err := channel.NewClient(ts.URL, "", 100)
			require.NoError(t, err)

			days, err := cl.FetchChannelCalendar(context.Background(), domain.ChannelConnection{
				Channel: "airbnb", ExternalListingID: "L-1",
			}, stayRange(t))
			assert.ErrorIs(t, err, channel.ErrMalformed)
			assert.Nil(t, days)
		})
	}
}
