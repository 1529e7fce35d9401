package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/store/storetest"
)

func TestRepository(t *testing.T) {
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "salonpos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	storetest.Run(t, s)
}

func TestNewIsRerunnable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "salonpos.db")
	first, err := New(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
