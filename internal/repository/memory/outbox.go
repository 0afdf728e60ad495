package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/calendar-engine/internal/domain"
)

// ClaimOutbox leases up to limit due PENDING events in creation order.
func (s *Store) ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []domain.OutboxEvent
	for _, r := range s.outbox {
		if len(out) >= limit {
			break
		}
		if r.ev.Status != domain.OutboxPending || r.ev.NextAttemptAt.After(now) {
			continue
		}
		r.ev.NextAttemptAt = now.Add(lease)
		out = append(out, r.ev)
	}

	return out, nil
}

func (s *Store) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	return s.updatePending(id, func(ev *domain.OutboxEvent) {
		sent := s.now()
		ev.Status = domain.OutboxSent
		ev.SentAt = &sent
		ev.ErrorMessage = ""
	})
}

func (s *Store) MarkOutboxRetry(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
	errMsg string,
	next time.Time,
) error {
	return s.updatePending(id, func(ev *domain.OutboxEvent) {
		ev.RetryCount = retryCount
		ev.ErrorMessage = errMsg
		ev.NextAttemptAt = next
	})
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	return s.updatePending(id, func(ev *domain.OutboxEvent) {
		ev.Status = domain.OutboxFailed
		ev.RetryCount = retryCount
		ev.ErrorMessage = errMsg
	})
}

func (s *Store) updatePending(id uuid.UUID, fn func(ev *domain.OutboxEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.outbox {
		if r.ev.ID == id {
			if r.ev.Status == domain.OutboxPending {
				fn(&r.ev)
			}
			return nil
		}
	}

	return nil
}
