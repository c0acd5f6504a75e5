package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"callpanel/internal/config"
	"callpanel/internal/record"
	"callpanel/internal/store"
	"callpanel/internal/testsupport"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres container test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("callpanel"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := testsupport.NewConfig(t, testsupport.WithStoreDSN(config.DriverPostgres, connStr))
	st := testsupport.MustOpenStore(t, cfg)
	assert.Equal(t, "postgres", st.Driver())

	rec := &record.Record{Agent: "ana", Status: record.StatusDraft, CurrentFilter: 1, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, st.InTx(ctx, func(tx *store.Tx) error {
		return tx.InsertRecord(ctx, rec)
	}))
	assert.NotZero(t, rec.ID)

	t.Run("filters and record round trip", func(t *testing.T) {
		require.NoError(t, st.InTx(ctx, func(tx *store.Tx) error {
			got, err := tx.LockRecord(ctx, rec.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, record.StatusDraft, got.Status)

			filters, err := tx.Filters(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, [3]record.FilterStatus{record.FilterNotStarted, record.FilterNotStarted, record.FilterNotStarted}, filters.Statuses())
			return nil
		}))
	})

	t.Run("concurrent lease inserts have one winner", func(t *testing.T) {
		const contenders = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				owner := string(rune('a' + i))
				err := st.InTx(ctx, func(tx *store.Tx) error {
					ok, err := tx.InsertLeaseIfAbsent(ctx, leaseFor(rec.ID, owner, base, time.Minute))
					if err != nil {
						return err
					}
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
					return nil
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("expired sweep", func(t *testing.T) {
		require.NoError(t, st.InTx(ctx, func(tx *store.Tx) error {
			deleted, err := tx.DeleteExpiredLeases(ctx, base.Add(2*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, int64(1), deleted)
			return nil
		}))
	})

	t.Run("health", func(t *testing.T) {
		health, err := st.CheckHealth(ctx)
		require.NoError(t, err)
		assert.True(t, health.Readable)
		assert.Equal(t, 1, health.TotalRecords)
		assert.NotContains(t, health.Target, "password")
	})
}
