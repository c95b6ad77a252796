package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flixor/flixor/internal/domain"
)

func TestBoltStore_RoundTrip(t *testing.T) {
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("auth:plex", []byte(`{"token":"t"}`)))

	got, err := s.Get("auth:plex")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"token":"t"}`), got)
}

func TestBoltStore_MissingKey(t *testing.T) {
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get("absent")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestBoltStore_Delete(t *testing.T) {
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("k", []byte("v")))
	require.NoError(t, s.Delete("k"))

	_, err = s.Get("k")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, s.Delete("k"))
}

func TestBoltStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", []byte("survives")))
	require.NoError(t, s.Close())

	s2, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("survives"), got)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.Set("k", []byte("v")))

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = s.Get("other")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	value := []byte("original")
	require.NoError(t, s.Set("k", value))
	value[0] = 'X'

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got, "store must not alias caller slices")
}

func TestOpen_EmptyDirIsMemory(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	_, isMemory := s.(*MemoryStore)
	assert.True(t, isMemory)
}
