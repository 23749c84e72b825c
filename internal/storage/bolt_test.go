package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gotd/td/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(t *testing.T) *BoltSession {
	t.Helper()
	s, err := OpenBoltSession(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltSession_roundTrip(t *testing.T) {
	ctx := context.Background()
	s := testSession(t)

	_, err := s.LoadSession(ctx)
	assert.ErrorIs(t, err, session.ErrNotFound, "empty store must report ErrNotFound")

	require.NoError(t, s.StoreSession(ctx, []byte("first")))
	data, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	// Store is an upsert.
	require.NoError(t, s.StoreSession(ctx, []byte("second")))
	data, err = s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}
