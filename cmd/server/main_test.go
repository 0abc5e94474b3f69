package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybalancer-go/internal/store"
)

func TestProxyToggleSetting(t *testing.T) {
	ctx := context.Background()
	backend := store.NewFileBackend(t.TempDir())
	require.NoError(t, backend.Initialize(ctx))

	// Nothing persisted yet: the file value applies.
	assert.False(t, proxyToggleSetting(ctx, backend, false))
	assert.True(t, proxyToggleSetting(ctx, backend, true))

	// A persisted admin toggle wins over the file, in both directions.
	require.NoError(t, backend.SetConfig(ctx, proxyToggleKey, "false"))
	assert.False(t, proxyToggleSetting(ctx, backend, true))
	require.NoError(t, backend.SetConfig(ctx, proxyToggleKey, "true"))
	assert.True(t, proxyToggleSetting(ctx, backend, false))

	// Garbage in the backend falls back to the file value.
	require.NoError(t, backend.SetConfig(ctx, proxyToggleKey, "junk"))
	assert.True(t, proxyToggleSetting(ctx, backend, true))
	assert.False(t, proxyToggleSetting(ctx, backend, false))
}
