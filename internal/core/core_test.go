package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ruuvigw/wifimgr/internal/radio"
	"github.com/ruuvigw/wifimgr/internal/wmdef"
)

func newTestConfig(t *testing.T) *wmdef.Config {
	cfg := wmdef.DefaultConfig()
	cfg.CredStorePath = filepath.Join(t.TempDir(), "creds.db")
	cfg.HTTPPort = 0
	return cfg
}

func TestNewReachesIniting(t *testing.T) {
	cfg := newTestConfig(t)
	driver := radio.NewSimulator()

	c, err := New(cfg, driver, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer c.creds.Close()

	assert.Equal(t, Initing, c.Readiness())
}

func TestRunReachesOnlineThenOfflineOnCancel(t *testing.T) {
	cfg := newTestConfig(t)
	driver := radio.NewSimulator()

	c, err := New(cfg, driver, zap.NewNop().Sugar())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return c.Readiness() == Online
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	assert.Equal(t, Offline, c.Readiness())
}
