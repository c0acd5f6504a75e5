package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callpanel/internal/api"
	"callpanel/internal/logging"
	"callpanel/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Lease.SweepIntervalSeconds = 1
	engine, st := testsupport.NewEngine(t, cfg, nil)

	d, err := New(cfg, st, engine, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, d.Start(ctx))
	t.Cleanup(d.Stop)
	require.Error(t, d.Start(ctx), "second start on the same daemon should fail")

	status := d.Status(ctx)
	assert.True(t, status.Running)
	assert.Equal(t, cfg.LockPath(), status.LockFilePath)
	assert.True(t, status.Database.Readable)
	assert.NoError(t, status.StatsError)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + d.Addr() + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload api.DaemonStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.True(t, payload.Running)
	assert.Equal(t, 60, payload.LeaseTTLSeconds)
	assert.Equal(t, 1, payload.SweepIntervalSeconds)
	assert.Equal(t, "sqlite", payload.Database.Driver)

	d.Stop()
	assert.False(t, d.Status(ctx).Running)
	assert.Empty(t, d.Addr())

	require.NoError(t, d.Start(ctx), "restart after stop should succeed")
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine, st := testsupport.NewEngine(t, cfg, nil)

	first, err := New(cfg, st, engine, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	t.Cleanup(first.Stop)

	second, err := New(cfg, st, engine, logging.NewNop())
	require.NoError(t, err)
	err = second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	require.Error(t, err)
}
