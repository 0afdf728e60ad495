package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MemoryDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("OUTBOX_PUBLISHER", "none")
	t.Setenv("RETRY_BACKOFF", "")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, cfg.Lock.Backend)
	assert.Equal(t, 5*time.Second, cfg.Lock.Timeout)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute}, cfg.Outbox.Backoff)
	assert.Equal(t, "5", cfg.Reconcile.ThresholdPct.String())
	assert.Equal(t, 366, cfg.Commands.MaxNights)
	assert.Equal(t, int64(100000), cfg.Outbox.StreamMaxLen)
}

func TestNew_RetryBackoffList(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("OUTBOX_PUBLISHER", "none")
	t.Setenv("RETRY_BACKOFF", "100ms, 2s ,1m")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 2 * time.Second, time.Minute}, cfg.Outbox.Backoff)
}

func TestNew_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown store":      {"STORE_BACKEND": "sqlite"},
		"pg lock on memory":  {"STORE_BACKEND": "memory", "LOCK_BACKEND": "postgres", "OUTBOX_PUBLISHER": "none"},
		"redis lock no addr": {"STORE_BACKEND": "memory", "LOCK_BACKEND": "redis", "REDIS_ADDR": "", "OUTBOX_PUBLISHER": "none"},
		"bad backoff":        {"STORE_BACKEND": "memory", "OUTBOX_PUBLISHER": "none", "RETRY_BACKOFF": "soon"},
		"missing pg user":    {"STORE_BACKEND": "postgres", "POSTGRES_USER": ""},
		"zero max nights":    {"STORE_BACKEND": "memory", "OUTBOX_PUBLISHER": "none", "COMMAND_MAX_NIGHTS": "0"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := New()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config.New")
		})
	}
}
