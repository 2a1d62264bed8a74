package credentials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("openai", "sk-test-123"))

	key, err := store.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", key)
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get("anthropic")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreProviderNameNormalized(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("  OpenAI ", "sk-test-123"))

	key, err := store.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", key)
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	store := NewMemoryStore()

	assert.Error(t, store.Set("openai", "   "))
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("openai", "sk-test-123"))
	require.NoError(t, store.Delete("openai"))
	require.NoError(t, store.Delete("openai"))

	_, err := store.Get("openai")
	assert.True(t, errors.Is(err, ErrNotFound))
}
