package sqlitestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkavo-org/trustchain/pkg/claims"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "secure.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutIfAbsentFirstWriteWins(t *testing.T) {
	s := openStore(t)

	won, err := s.PutIfAbsent("device/alice", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), won)

	lost, err := s.PutIfAbsent("device/alice", []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), lost)

	got, ok, err := s.Get("device/alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("first"), got)
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistsAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.PutIfAbsent("k", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, ok, err := s2.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestDeviceIDStableAcrossProcessRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.db")

	s, err := Open(path)
	require.NoError(t, err)
	first, err := claims.GetOrCreateDeviceID(s, "alice", claims.RandomAttestor{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	second, err := claims.GetOrCreateDeviceID(s2, "alice", claims.RandomAttestor{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
