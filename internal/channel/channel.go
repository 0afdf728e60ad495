// Package channel reads availability from external distribution channels.
package channel

import (
	"context"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// Calendar fetches a channel's view of a listing's nights over a range.
// Nights missing from the answer are treated as AVAILABLE by callers.
type Calendar interface {
	FetchChannelCalendar(
		ctx context.Context,
		conn domain.ChannelConnection,
		r domain.DateRange,
	) ([]domain.ChannelCalendarDay, error)
}
