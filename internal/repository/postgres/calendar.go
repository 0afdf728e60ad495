package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
)

type CalendarRepo struct {
	base
}

// Property retrieves a property of the repository's organization.
//
// Returns:
//   - domain.Property: the property when found.
//   - error: repository.ErrNotFound if the property does not exist or belongs
//     to another organization.
func (r *CalendarRepo) Property(ctx context.Context, propertyID int64) (domain.Property, error) {
	const op = "postgresrepo.CalendarRepo.Property"

	var p domain.Property
	err := r.handle().QueryRow(ctx,
		`SELECT id, organization_id, name, currency, nightly_price, calendar_version
		 FROM properties
		 WHERE organization_id = $1 AND id = $2`,
		r.org, propertyID,
	).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Currency, &p.NightlyPrice, &p.CalendarVer)
	if err != nil {
		return domain.Property{}, wrapDBErr(op, err)
	}

	return p, nil
}

// CalendarDays returns the stored rows for the nights of rng in date order.
// Nights without a row are not returned; callers fill them with
// domain.FillCalendar.
func (r *CalendarRepo) CalendarDays(
	ctx context.Context,
	propertyID int64,
	rng domain.DateRange,
) ([]domain.CalendarDay, error) {
	const op = "postgresrepo.CalendarRepo.CalendarDays"

	rows, err := r.handle().Query(ctx,
		`SELECT organization_id, property_id, date, status, reservation_id, price,
		        min_stay, max_stay, changeover, source, updated_at
		 FROM calendar_days
		 WHERE organization_id = $1
		   AND property_id = $2
		   AND date >= $3 AND date < $4
		 ORDER BY date`,
		r.org, propertyID, rng.CheckIn, rng.CheckOut,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.CalendarDay
	for rows.Next() {
		var (
			d   domain.CalendarDay
			res *string
		)
		if err := rows.Scan(
			&d.OrganizationID, &d.PropertyID, &d.Date, &d.Status, &res, &d.Price,
			&d.MinStay, &d.MaxStay, &d.Changeover, &d.Source, &d.UpdatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		if res != nil {
			d.ReservationID = *res
		}
		d.Date = domain.Day(d.Date)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// SaveCalendarDays upserts every day in one batch. The table's check
// constraint rejects a BOOKED row without a reservation link.
//
// Returns:
//   - error: repository.ErrConflict if a row violates the booking link
//     constraint or belongs to another organization.
func (r *CalendarRepo) SaveCalendarDays(ctx context.Context, days []domain.CalendarDay) error {
	const op = "postgresrepo.CalendarRepo.SaveCalendarDays"

	if len(days) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, d := range days {
		var res *string
		if d.ReservationID != "" {
			id := d.ReservationID
			res = &id
		}
		batch.Queue(
			`INSERT INTO calendar_days (organization_id, property_id, date, status, reservation_id,
			                            price, min_stay, max_stay, changeover, source, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (property_id, date) DO UPDATE
			   SET status = EXCLUDED.status,
			       reservation_id = EXCLUDED.reservation_id,
			       price = EXCLUDED.price,
			       min_stay = EXCLUDED.min_stay,
			       max_stay = EXCLUDED.max_stay,
			       changeover = EXCLUDED.changeover,
			       source = EXCLUDED.source,
			       updated_at = EXCLUDED.updated_at
			 WHERE calendar_days.organization_id = EXCLUDED.organization_id`,
			r.org, d.PropertyID, domain.Day(d.Date), d.Status, res,
			d.Price, d.MinStay, d.MaxStay, d.Changeover, d.Source, now,
		)
	}

	results := r.handle().SendBatch(ctx, batch)
	for range days {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return wrapDBErr(op, err)
		}
		if tag.RowsAffected() == 0 {
			_ = results.Close()
			return wrapDBErr(op, repository.ErrConflict)
		}
	}
	if err := results.Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// NextCalendarVersion increments and returns the property's calendar version.
// Outbox consumers use it to order and dedupe events.
func (r *CalendarRepo) NextCalendarVersion(ctx context.Context, propertyID int64) (int64, error) {
	const op = "postgresrepo.CalendarRepo.NextCalendarVersion"

	var v int64
	if err := r.handle().QueryRow(ctx,
		`UPDATE properties
		 SET calendar_version = calendar_version + 1
		 WHERE organization_id = $1 AND id = $2
		 RETURNING calendar_version`,
		r.org, propertyID,
	).Scan(&v); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return v, nil
}
