package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybalancer-go/internal/balancer"
)

func newTestRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedisBackend(mr.Addr(), "", 0, "test:")
	require.NoError(t, r.Initialize(context.Background()))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisBackendSites(t *testing.T) {
	ctx := context.Background()
	r := newTestRedisBackend(t)

	_, err := r.GetSite(ctx, "openrouter.ai")
	assert.True(t, IsNotFound(err))

	site := &Site{
		Domain:  "openrouter.ai",
		Editors: []int{1},
		Keys:    []balancer.Key{{Token: "sk-or-1", Balance: "$12.34"}},
	}
	require.NoError(t, r.SetSite(ctx, site))

	got, err := r.GetSite(ctx, "openrouter.ai")
	require.NoError(t, err)
	assert.Equal(t, site, got)

	all, err := r.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "openrouter.ai", all[0].Domain)

	require.NoError(t, r.DeleteSite(ctx, "openrouter.ai"))
	assert.True(t, IsNotFound(r.DeleteSite(ctx, "openrouter.ai")))

	all, err = r.ListSites(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRedisBackendUsers(t *testing.T) {
	ctx := context.Background()
	r := newTestRedisBackend(t)

	require.NoError(t, r.SetUser(ctx, &User{ID: 2, Username: "bob", APIKey: "key-2"}))
	got, err := r.GetUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	users, err := r.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, r.DeleteUser(ctx, 2))
	_, err = r.GetUser(ctx, 2)
	assert.True(t, IsNotFound(err))
}

func TestRedisBackendConfig(t *testing.T) {
	ctx := context.Background()
	r := newTestRedisBackend(t)

	_, err := r.GetConfig(ctx, "use_proxies_for_balancer")
	assert.True(t, IsNotFound(err))

	require.NoError(t, r.SetConfig(ctx, "use_proxies_for_balancer", "true"))
	value, err := r.GetConfig(ctx, "use_proxies_for_balancer")
	require.NoError(t, err)
	assert.Equal(t, "true", value)
}
