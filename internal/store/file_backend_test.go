package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybalancer-go/internal/balancer"
)

func newTestFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	f := NewFileBackend(t.TempDir())
	require.NoError(t, f.Initialize(context.Background()))
	return f
}

func TestFileBackendSites(t *testing.T) {
	ctx := context.Background()
	f := newTestFileBackend(t)

	_, err := f.GetSite(ctx, "api.example.com")
	assert.True(t, IsNotFound(err))

	site := &Site{
		Domain:  "api.example.com",
		Readers: []int{2},
		Editors: []int{3},
		Keys:    []balancer.Key{{Token: "sk-1", Balance: "$5.00"}},
	}
	require.NoError(t, f.SetSite(ctx, site))

	got, err := f.GetSite(ctx, "api.example.com")
	require.NoError(t, err)
	assert.Equal(t, site, got)

	// The returned document is a copy, mutations must not leak back.
	got.Keys[0].Balance = "$0.00"
	again, err := f.GetSite(ctx, "api.example.com")
	require.NoError(t, err)
	assert.Equal(t, "$5.00", again.Keys[0].Balance)

	all, err := f.ListSites(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, f.DeleteSite(ctx, "api.example.com"))
	assert.True(t, IsNotFound(f.DeleteSite(ctx, "api.example.com")))
}

func TestFileBackendSurvivesReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	f := NewFileBackend(dir)
	require.NoError(t, f.Initialize(ctx))
	require.NoError(t, f.SetSite(ctx, &Site{Domain: "generativelanguage.googleapis.com"}))
	require.NoError(t, f.SetUser(ctx, &User{ID: 1, Username: "admin", Admin: true, APIKey: "k"}))
	require.NoError(t, f.SetConfig(ctx, "use_proxies_for_balancer", "true"))
	require.NoError(t, f.Close())

	reloaded := NewFileBackend(dir)
	require.NoError(t, reloaded.Initialize(ctx))

	site, err := reloaded.GetSite(ctx, "generativelanguage.googleapis.com")
	require.NoError(t, err)
	assert.Equal(t, "generativelanguage.googleapis.com", site.Domain)

	user, err := reloaded.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.True(t, user.Admin)

	value, err := reloaded.GetConfig(ctx, "use_proxies_for_balancer")
	require.NoError(t, err)
	assert.Equal(t, "true", value)
}

func TestFileBackendUsers(t *testing.T) {
	ctx := context.Background()
	f := newTestFileBackend(t)

	_, err := f.GetUser(ctx, 7)
	assert.True(t, IsNotFound(err))

	require.NoError(t, f.SetUser(ctx, &User{ID: 7, Username: "alice"}))
	got, err := f.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	users, err := f.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, f.DeleteUser(ctx, 7))
	assert.True(t, IsNotFound(f.DeleteUser(ctx, 7)))
}

func TestFileBackendConfig(t *testing.T) {
	ctx := context.Background()
	f := newTestFileBackend(t)

	_, err := f.GetConfig(ctx, "missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, f.SetConfig(ctx, "flag", "1"))
	require.NoError(t, f.SetConfig(ctx, "flag", "0"))
	value, err := f.GetConfig(ctx, "flag")
	require.NoError(t, err)
	assert.Equal(t, "0", value)
}

func TestSiteFilename(t *testing.T) {
	assert.Equal(t, "api.example.com.json", siteFilename("API.Example.com"))
	assert.Equal(t, "https.proxy.json", siteFilename(ProxySiteDomain))
}
