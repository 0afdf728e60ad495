package postgresrepo

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/calendar-engine/internal/domain"
)

type OutboxRepo struct {
	base
}

// EnqueueOutbox stores a PENDING event. It is called inside the transaction
// of the mutation the event describes.
func (r *OutboxRepo) EnqueueOutbox(ctx context.Context, ev domain.OutboxEvent) error {
	const op = "postgresrepo.OutboxRepo.EnqueueOutbox"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO outbox_events (id, organization_id, aggregate_type, aggregate_id, event_type,
		                            topic, partition_key, payload, version, status, next_attempt_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'PENDING', $10, $10)`,
		ev.ID, r.org, ev.AggregateType, ev.AggregateID, ev.EventType,
		ev.Topic, ev.PartitionKey, ev.Payload, ev.Version, ev.CreatedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ClaimOutbox leases up to limit due PENDING events in creation order. A
// claimed event is invisible to other relays until the lease expires, so an
// event whose delivery was never acknowledged is picked up again.
func (r *OutboxRepo) ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxEvent, error) {
	const op = "postgresrepo.OutboxRepo.ClaimOutbox"

	rows, err := r.handle().Query(ctx,
		`WITH due AS (
		   SELECT id FROM outbox_events
		   WHERE status = 'PENDING' AND next_attempt_at <= now()
		   ORDER BY seq
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 )
		 UPDATE outbox_events o
		 SET next_attempt_at = now() + $2::bigint * interval '1 millisecond'
		 FROM due
		 WHERE o.id = due.id
		 RETURNING o.id, o.organization_id, o.aggregate_type, o.aggregate_id, o.event_type, o.topic,
		           o.partition_key, o.payload, o.version, o.status, o.retry_count, o.error_message,
		           o.next_attempt_at, o.created_at, o.seq`,
		limit, lease.Milliseconds(),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	type claimed struct {
		ev  domain.OutboxEvent
		seq int64
	}
	var batch []claimed
	for rows.Next() {
		var c claimed
		if err := rows.Scan(
			&c.ev.ID, &c.ev.OrganizationID, &c.ev.AggregateType, &c.ev.AggregateID, &c.ev.EventType,
			&c.ev.Topic, &c.ev.PartitionKey, &c.ev.Payload, &c.ev.Version, &c.ev.Status,
			&c.ev.RetryCount, &c.ev.ErrorMessage, &c.ev.NextAttemptAt, &c.ev.CreatedAt, &c.seq,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		batch = append(batch, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	// UPDATE ... RETURNING does not preserve the CTE order.
	sort.Slice(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })

	out := make([]domain.OutboxEvent, len(batch))
	for i, c := range batch {
		out[i] = c.ev
	}

	return out, nil
}

func (r *OutboxRepo) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.OutboxRepo.MarkOutboxSent"

	_, err := r.handle().Exec(ctx,
		`UPDATE outbox_events
		 SET status = 'SENT', sent_at = now(), error_message = ''
		 WHERE id = $1 AND status = 'PENDING'`,
		id,
	)
	return wrapDBErr(op, err)
}

func (r *OutboxRepo) MarkOutboxRetry(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
	errMsg string,
	next time.Time,
) error {
	const op = "postgresrepo.OutboxRepo.MarkOutboxRetry"

	_, err := r.handle().Exec(ctx,
		`UPDATE outbox_events
		 SET retry_count = $2, error_message = $3, next_attempt_at = $4
		 WHERE id = $1 AND status = 'PENDING'`,
		id, retryCount, errMsg, next,
	)
	return wrapDBErr(op, err)
}

func (r *OutboxRepo) MarkOutboxFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	const op = "postgresrepo.OutboxRepo.MarkOutboxFailed"

	_, err := r.handle().Exec(ctx,
		`UPDATE outbox_events
		 SET status = 'FAILED', retry_count = $2, error_message = $3
		 WHERE id = $1 AND status = 'PENDING'`,
		id, retryCount, errMsg,
	)
	return wrapDBErr(op, err)
}
