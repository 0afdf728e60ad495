package postgresrepo

import (
	"context"

	"github.com/kirinyoku/calendar-engine/internal/domain"
)

type ReconciliationRepo struct {
	base
}

func (r *ReconciliationRepo) ChannelConnection(ctx context.Context, id int64) (domain.ChannelConnection, error) {
	const op = "postgresrepo.ReconciliationRepo.ChannelConnection"

	var c domain.ChannelConnection
	err := r.handle().QueryRow(ctx,
		`SELECT id, organization_id, property_id, channel, external_listing_id, auto_fix, active
		 FROM channel_connections
		 WHERE organization_id = $1 AND id = $2`,
		r.org, id,
	).Scan(&c.ID, &c.OrganizationID, &c.PropertyID, &c.Channel, &c.ExternalListingID, &c.AutoFix, &c.Active)
	if err != nil {
		return domain.ChannelConnection{}, wrapDBErr(op, err)
	}

	return c, nil
}

// ActiveChannelConnections is not tenant-scoped: the scheduler walks every
// organization.
func (r *ReconciliationRepo) ActiveChannelConnections(ctx context.Context) ([]domain.ChannelConnection, error) {
	const op = "postgresrepo.ReconciliationRepo.ActiveChannelConnections"

	rows, err := r.handle().Query(ctx,
		`SELECT id, organization_id, property_id, channel, external_listing_id, auto_fix, active
		 FROM channel_connections
		 WHERE active
		 ORDER BY organization_id, id`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.ChannelConnection
	for rows.Next() {
		var c domain.ChannelConnection
		if err := rows.Scan(
			&c.ID, &c.OrganizationID, &c.PropertyID, &c.Channel, &c.ExternalListingID, &c.AutoFix, &c.Active,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *ReconciliationRepo) SaveReconciliationRun(ctx context.Context, run domain.ReconciliationRun) error {
	const op = "postgresrepo.ReconciliationRepo.SaveReconciliationRun"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO reconciliation_runs (id, organization_id, connection_id, channel, property_id,
		                                  range_start, range_end, pms_days_checked, channel_days_checked,
		                                  discrepancies_found, discrepancies_fixed, divergence_percent,
		                                  status, error_message, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		run.ID, r.org, run.ConnectionID, run.Channel, run.PropertyID,
		run.Range.CheckIn, run.Range.CheckOut, run.PMSDaysChecked, run.ChannelDaysChecked,
		run.DiscrepanciesFound, run.DiscrepanciesFixed, run.DivergencePercent,
		run.Status, run.ErrorMessage, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
