package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/internal/store/storetest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "copybot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.TradeStore { return newStore(t) })
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copybot.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, storetest.Record("a", "0xt1", domain.SideBuy, 0)))
	ok, err := s.Claim(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Close())

	// 迁移可重复执行，认领状态跨重启保留
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, got.Claimed)
}
