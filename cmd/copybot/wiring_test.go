package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/internal/executor"
	"github.com/betbot/copybot/internal/store/memory"
	"github.com/betbot/copybot/internal/store/sqlite"
	"github.com/betbot/copybot/pkg/config"
	"github.com/betbot/copybot/pkg/persistence"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := openStore(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)

	st, err = openStore(ctx, config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "copy.db")})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, st)
	require.NoError(t, st.Ping(ctx))
	require.NoError(t, st.Close())

	_, err = openStore(ctx, config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}

func TestOpenSnapshots(t *testing.T) {
	svc, closeFn, err := openSnapshots(config.SnapshotConfig{Backend: "json", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &persistence.JSONFileService{}, svc)
	assert.NoError(t, closeFn())

	svc, closeFn, err = openSnapshots(config.SnapshotConfig{Backend: "badger", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &persistence.BadgerService{}, svc)
	assert.NoError(t, closeFn())
}

func TestPrintRecommendedRejectsBadBalance(t *testing.T) {
	assert.Error(t, printRecommended("abc"))
	assert.Error(t, printRecommended("-5"))
}

func TestMachineConfigKeepsExchangeMinimum(t *testing.T) {
	cfg := &config.Config{RetryLimit: 5}
	m := machineConfig(cfg)
	assert.Equal(t, 5, m.RetryLimit)
	// 策略最低 $5 时，$12 的目标也要填到剩余 < $1 才停
	assert.True(t, m.MinOrderUSD.Equal(executor.DefaultMachineConfig().MinOrderUSD))
	assert.Equal(t, "1", m.MinOrderUSD.String())
}
