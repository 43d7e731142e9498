package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bifrost/internal/config"
)

func TestConnect(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Address = mr.Addr()

	client, err := Connect(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConnect_Unreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.InitialBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 10 * time.Millisecond
	cfg.ConnectionRetries = 2
	cfg.MaxRetries = -1

	_, err := Connect(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestConnect_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:1"

	_, err := Connect(ctx, cfg, nil)
	assert.Error(t, err)
}

func TestFromGatewayConfig(t *testing.T) {
	t.Parallel()

	gw := config.DefaultConfig().Redis
	gw.Address = "redis:6380"
	gw.Password = "pw"
	gw.DB = 2
	gw.DialTimeout = config.Duration(time.Second)

	cfg := FromGatewayConfig(&gw)
	assert.Equal(t, "redis:6380", cfg.Address)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, time.Second, cfg.DialTimeout)
	assert.Equal(t, 5, cfg.ConnectionRetries)
}

func TestDecorrelatedJitterBackoff(t *testing.T) {
	t.Parallel()

	b := newDecorrelatedJitterBackoff(10*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, b.next(0))

	for attempt := 1; attempt < 10; attempt++ {
		wait := b.next(attempt)
		assert.GreaterOrEqual(t, wait, 10*time.Millisecond)
		assert.LessOrEqual(t, wait, 50*time.Millisecond)
	}
}

func TestBuildConnectionConfig(t *testing.T) {
	t.Parallel()

	cc := buildConnectionConfig(&Config{ConnectionRetries: -3})
	assert.Equal(t, 0, cc.maxRetries)
	assert.Equal(t, 100*time.Millisecond, cc.initialBackoff)
	assert.Equal(t, 10*time.Second, cc.maxBackoff)
	assert.Equal(t, 15*time.Second, cc.totalTimeout)

	cc = buildConnectionConfig(&Config{ConnectionRetries: 100, DialTimeout: time.Minute})
	assert.Equal(t, 2*time.Minute, cc.totalTimeout)
}

func TestMetrics_MustRegister(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() { GetMetrics().MustRegister(reg) })
}
