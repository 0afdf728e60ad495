package uow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/calendar-engine/internal/domain"
	"github.com/kirinyoku/calendar-engine/internal/repository"
	"github.com/kirinyoku/calendar-engine/internal/repository/memory"
	"github.com/kirinyoku/calendar-engine/internal/uow"
)

func TestDo_RunsHooksAfterCommit(t *testing.T) {
	store := memory.New()
	u := uow.NewUoW(store)

	var ran []string
	var id int64
	err := u.Do(context.Background(), 1, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		var err error
		id, err = tx.CreateProperty(ctx, domain.Property{Name: "Cabin"})
		after(func(ctx context.Context) { ran = append(ran, "first") })
		after(func(ctx context.Context) { ran = append(ran, "second") })
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, ran)
	_, err = store.Tenant(1).Property(context.Background(), id)
	assert.NoError(t, err)
}

func TestDo_SkipsHooksAndWritesOnError(t *testing.T) {
	store := memory.New()
	u := uow.NewUoW(store)
	boom := errors.New("boom")

	var ran bool
	var id int64
	err := u.Do(context.Background(), 1, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		id, _ = tx.CreateProperty(ctx, domain.Property{Name: "Cabin"})
		after(func(ctx context.Context) { ran = true })
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.False(t, ran)
	_, err = store.Tenant(1).Property(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
