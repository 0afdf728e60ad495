package postgresrepo

import (
	"context"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// CommandRepo is the append-only command log. It deliberately exposes no
// update or delete.
type CommandRepo struct {
	base
}

func (r *CommandRepo) AppendCommand(ctx context.Context, cmd domain.CalendarCommand) error {
	const op = "postgresrepo.CommandRepo.AppendCommand"

	payload, err := cmd.PayloadJSON()
	if err != nil {
		return wrapDBErr(op, err)
	}

	_, err = r.handle().Exec(ctx,
		`INSERT INTO calendar_commands (id, organization_id, property_id, type, check_in, check_out,
		                                source, actor, payload, status, reason, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		cmd.ID, r.org, cmd.PropertyID, cmd.Type, cmd.Range.CheckIn, cmd.Range.CheckOut,
		cmd.Source, cmd.Actor, payload, cmd.Status, cmd.Reason, cmd.ExecutedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Commands returns up to limit most recent log entries of a property in
// creation order.
func (r *CommandRepo) Commands(ctx context.Context, propertyID int64, limit int) ([]domain.CalendarCommand, error) {
	const op = "postgresrepo.CommandRepo.Commands"

	rows, err := r.handle().Query(ctx,
		`SELECT id, organization_id, property_id, type, check_in, check_out,
		        source, actor, payload, status, reason, executed_at
		 FROM (
		   SELECT * FROM calendar_commands
		   WHERE organization_id = $1 AND property_id = $2
		   ORDER BY seq DESC
		   LIMIT $3
		 ) c
		 ORDER BY seq`,
		r.org, propertyID, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.CalendarCommand
	for rows.Next() {
		var (
			c   domain.CalendarCommand
			raw []byte
		)
		if err := rows.Scan(
			&c.ID, &c.OrganizationID, &c.PropertyID, &c.Type, &c.Range.CheckIn, &c.Range.CheckOut,
			&c.Source, &c.Actor, &raw, &c.Status, &c.Reason, &c.ExecutedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		c.Range.CheckIn = domain.Day(c.Range.CheckIn)
		c.Range.CheckOut = domain.Day(c.Range.CheckOut)
		// Rejected invalid commands may carry an unknown type and no payload.
		if c.Type.Valid() {
			if c.Payload, err = domain.DecodePayload(c.Type, raw); err != nil {
				return nil, wrapDBErr(op, err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
