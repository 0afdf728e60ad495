package channel

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/observability"
)

var (
	ErrNotFound     = errors.New("channel: listing not found")
	ErrUnauthorized = errors.New("channel: unauthorized")
	ErrMalformed    = errors.New("channel: malformed calendar")
)

const maxAttempts = 4

// Client talks to the channel manager gateway over HTTP with client-side
// rate limiting and retries on 429 and transient 5xx.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func NewClient(base, key string, rps int) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("channel: base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

type calendarResponse struct {
	Days []struct {
		Date           string `json:"date"`
		Status         string `json:"status"`
		ReservationRef string `json:"reservation_ref"`
	} `json:"days"`
}

func (c *Client) FetchChannelCalendar(
	ctx context.Context,
	conn domain.ChannelConnection,
	r domain.DateRange,
) ([]domain.ChannelCalendarDay, error) {
	const op = "channel.Client.FetchChannelCalendar"

	u := fmt.Sprintf("%s/channels/%s/listings/%s/calendar?%s",
		c.base,
		url.PathEscape(conn.Channel),
		url.PathEscape(conn.ExternalListingID),
		url.Values{
			"from": {r.CheckIn.Format(domain.DateLayout)},
			"to":   {r.CheckOut.Format(domain.DateLayout)},
		}.Encode(),
	)

	var resp calendarResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]domain.ChannelCalendarDay, 0, len(resp.Days))
	for _, d := range resp.Days {
		date, err := domain.ParseDate(d.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: bad date %q", op, ErrMalformed, d.Date)
		}
		if !r.Contains(date) {
			continue
		}
		status, ok := normalizeStatus(d.Status)
		if !ok {
			return nil, fmt.Errorf("%s: %w: unknown status %q on %s", op, ErrMalformed, d.Status, d.Date)
		}
		out = append(out, domain.ChannelCalendarDay{
			Date:           date,
			Status:         status,
			ReservationRef: d.ReservationRef,
		})
	}

	return out, nil
}

// normalizeStatus folds channel vocabularies into AVAILABLE, BOOKED and
// BLOCKED. Anything else is rejected.
func normalizeStatus(s string) (domain.DayStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AVAILABLE", "OPEN", "FREE":
		return domain.DayAvailable, true
	case "BOOKED", "RESERVED":
		return domain.DayBooked, true
	case "BLOCKED", "UNAVAILABLE", "CLOSED", "MAINTENANCE":
		return domain.DayBlocked, true
	}
	return "", false
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "calendar-engine/1.0")

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("channel", resp.StatusCode)

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After in seconds or HTTP-date form. Returns 0 if
// absent or invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
