package postgresrepo

import (
	"context"
	"time"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

type RestrictionRepo struct {
	base
}

// Restrictions returns the rules whose date span contains date. The
// day-of-week filter is left to the caller.
func (r *RestrictionRepo) Restrictions(
	ctx context.Context,
	propertyID int64,
	date time.Time,
) ([]domain.BookingRestriction, error) {
	const op = "postgresrepo.RestrictionRepo.Restrictions"

	rows, err := r.handle().Query(ctx,
		`SELECT id, organization_id, property_id, start_date, end_date, days_of_week, arrival_days,
		        min_stay, max_stay, closed_to_arrival, closed_to_departure, gap_days,
		        advance_notice_days, priority, created_at
		 FROM booking_restrictions
		 WHERE organization_id = $1 AND property_id = $2
		   AND start_date <= $3 AND end_date >= $3
		 ORDER BY priority DESC, created_at DESC, id DESC`,
		r.org, propertyID, domain.Day(date),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.BookingRestriction
	for rows.Next() {
		var (
			br            domain.BookingRestriction
			dow, arrivals []int16
		)
		if err := rows.Scan(
			&br.ID, &br.OrganizationID, &br.PropertyID, &br.StartDate, &br.EndDate, &dow, &arrivals,
			&br.MinStay, &br.MaxStay, &br.ClosedToArrival, &br.ClosedToDeparture, &br.GapDays,
			&br.AdvanceNoticeDays, &br.Priority, &br.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		br.StartDate = domain.Day(br.StartDate)
		br.EndDate = domain.Day(br.EndDate)
		br.DaysOfWeek = weekdaysFromDB(dow)
		br.ArrivalDays = weekdaysFromDB(arrivals)
		out = append(out, br)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
