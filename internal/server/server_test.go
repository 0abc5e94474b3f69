package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"keybalancer-go/internal/balancer"
	"keybalancer-go/internal/config"
	"keybalancer-go/internal/store"
	"keybalancer-go/internal/users"
)

const (
	testAdminUser = "admin"
	testAdminPass = "admin-pass"
)

type fixture struct {
	t       *testing.T
	engine  *gin.Engine
	cfg     *config.Config
	backend *store.FileBackend
	sites   *store.SiteStore
	users   *users.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	backend := store.NewFileBackend(t.TempDir())
	require.NoError(t, backend.Initialize(ctx))

	cfg := config.Defaults()
	cfg.RateLimitRPS = 1000
	cfg.RateLimitBurst = 1000

	siteStore := store.NewSiteStore(backend)
	userStore, err := users.NewStore(ctx, backend, time.Hour)
	require.NoError(t, err)
	require.NoError(t, userStore.Bootstrap(ctx, testAdminUser, testAdminPass))

	dispatcher := balancer.NewDispatcher(siteStore, cfg.ProxiesEnabled)
	engine := balancer.NewEngine(balancer.NewRegistry(dispatcher))

	srv := New(cfg, Dependencies{
		Sites:   siteStore,
		Users:   userStore,
		Engine:  engine,
		Backend: backend,
	})
	return &fixture{
		t:       t,
		engine:  srv.BuildEngine(),
		cfg:     cfg,
		backend: backend,
		sites:   siteStore,
		users:   userStore,
	}
}

func (f *fixture) request(method, path, cookie string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: cookie})
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) post(path, cookie string, body interface{}) *httptest.ResponseRecorder {
	return f.request(http.MethodPost, path, cookie, body)
}

func (f *fixture) login(username, password string) string {
	f.t.Helper()
	w := f.post("/$/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			return c.Value
		}
	}
	f.t.Fatal("login response carried no session cookie")
	return ""
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := f.request(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t)

	w := f.post("/$/auth/whoami", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "loggedIn").Bool())

	w = f.post("/$/auth/login", "", gin.H{"username": testAdminUser, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.post("/$/auth/login", "", gin.H{"username": testAdminUser})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	cookie := f.login(testAdminUser, testAdminPass)
	w = f.post("/$/auth/whoami", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "loggedIn").Bool())
	assert.Equal(t, testAdminUser, gjson.Get(w.Body.String(), "user.username").String())
	assert.True(t, gjson.Get(w.Body.String(), "user.admin").Bool())

	w = f.post("/$/auth/logout", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "loggedOut").Bool())

	w = f.post("/$/auth/whoami", cookie, nil)
	assert.False(t, gjson.Get(w.Body.String(), "loggedIn").Bool())

	w = f.post("/$/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSitesRequireSession(t *testing.T) {
	f := newFixture(t)
	w := f.post("/$/sites/index", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Not logged in")
}

func TestSiteLifecycle(t *testing.T) {
	f := newFixture(t)
	cookie := f.login(testAdminUser, testAdminPass)

	w := f.post("/$/sites/add", cookie, gin.H{"url": "unsupported.example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.post("/$/sites/add", cookie, gin.H{"url": "unsupported.example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Site already exists")

	w = f.post("/$/sites/add", cookie, gin.H{"url": "has space"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid domain")

	// No classifier for this domain: the key is stored with the
	// unsupported-balance placeholder and no probe happens.
	w = f.post("/$/sites/addKey", cookie, gin.H{"domain": "unsupported.example.com", "key": "sk-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.post("/$/sites/addKey", cookie, gin.H{"domain": "unsupported.example.com", "key": "sk-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Key already exists")

	w = f.post("/$/sites/addKey", cookie, gin.H{"domain": "missing.example.com", "key": "sk-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.post("/$/sites/index", cookie, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	site := gjson.Get(body, `sites.#(domain=="unsupported.example.com")`)
	require.True(t, site.Exists(), body)
	assert.False(t, site.Get("supportsBalancer").Bool())
	require.Equal(t, int64(1), site.Get("keys.#").Int())
	assert.Equal(t, "sk-1", site.Get("keys.0.token").String())
	assert.Equal(t, balancer.UnsupportedBalance, site.Get("keys.0.balance").String())

	w = f.post("/$/sites/removeKey", cookie, gin.H{"domain": "unsupported.example.com", "key": "sk-1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.post("/$/sites/removeKey", cookie, gin.H{"domain": "unsupported.example.com", "key": "sk-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.post("/$/sites/deleteSite", cookie, gin.H{"domain": "unsupported.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.post("/$/sites/deleteSite", cookie, gin.H{"domain": "unsupported.example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddKeyDuplicateSkipsProbe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cookie := f.login(testAdminUser, testAdminPass)

	// vpnapi.io has a classifier; a duplicate must be rejected before any
	// probe goes out, otherwise the response depends on the probe result.
	require.NoError(t, f.sites.AddSite(ctx, "vpnapi.io"))
	require.NoError(t, f.sites.AddKey(ctx, "vpnapi.io", "tok-1", "Valid Key"))

	w := f.post("/$/sites/addKey", cookie, gin.H{"domain": "vpnapi.io", "key": "tok-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Key already exists")
}

func TestSortKeysEndpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cookie := f.login(testAdminUser, testAdminPass)

	require.NoError(t, f.sites.AddSite(ctx, "api.example.com"))
	require.NoError(t, f.sites.AddKey(ctx, "api.example.com", "low", "$1.00"))
	require.NoError(t, f.sites.AddKey(ctx, "api.example.com", "high", "$9.00"))

	w := f.post("/$/sites/sortKeys", cookie, gin.H{"domain": "api.example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	site, err := f.sites.Site(ctx, "api.example.com")
	require.NoError(t, err)
	assert.Equal(t, "high", site.Keys[0].Token)

	require.NoError(t, f.sites.AddKey(ctx, "api.example.com", "tiered", "T2 (Creator)"))
	w = f.post("/$/sites/sortKeys", cookie, gin.H{"domain": "api.example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no keys with balance to sort")
}

func TestAdminGating(t *testing.T) {
	f := newFixture(t)
	admin := f.login(testAdminUser, testAdminPass)

	w := f.post("/$/admin/createUser", admin, gin.H{"username": "bob", "password": "bob-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.post("/$/admin/createUser", admin, gin.H{"username": "bob", "password": "other"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "User already exists")

	bob := f.login("bob", "bob-pass")

	w = f.request(http.MethodGet, "/$/admin/users", bob, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.post("/$/sites/addUserToSite", bob, gin.H{"domain": "x", "username": "bob"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.request(http.MethodGet, "/$/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "allUsers.#").Int())
}

func TestPrimaryAdminProtections(t *testing.T) {
	f := newFixture(t)
	admin := f.login(testAdminUser, testAdminPass)

	w := f.post("/$/admin/deleteUser", admin, gin.H{"userId": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Cannot delete primary admin")

	w = f.post("/$/admin/setUserRole", admin, gin.H{"userId": 1, "isAdmin": false})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Cannot change role of primary admin")
}

func TestNonPrimaryAdminCannotTouchOtherAdmins(t *testing.T) {
	f := newFixture(t)
	admin := f.login(testAdminUser, testAdminPass)

	w := f.post("/$/admin/createUser", admin, gin.H{"username": "carol", "password": "carol-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.post("/$/admin/createUser", admin, gin.H{"username": "dave", "password": "dave-pass"})
	require.Equal(t, http.StatusOK, w.Code)

	// carol=2 dave=3; promote both.
	w = f.post("/$/admin/setUserRole", admin, gin.H{"userId": 2, "isAdmin": true})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.post("/$/admin/setUserRole", admin, gin.H{"userId": 3, "isAdmin": true})
	require.Equal(t, http.StatusOK, w.Code)

	carol := f.login("carol", "carol-pass")
	w = f.post("/$/admin/deleteUser", carol, gin.H{"userId": 3})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.post("/$/admin/setUserPassword", carol, gin.H{"userId": 3, "newPassword": "pwned"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The primary admin can.
	w = f.post("/$/admin/deleteUser", admin, gin.H{"userId": 3})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestProxyConfigToggle(t *testing.T) {
	f := newFixture(t)
	admin := f.login(testAdminUser, testAdminPass)

	w := f.request(http.MethodGet, "/$/admin/config", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "useProxiesForBalancer").Bool())

	w = f.post("/$/admin/config", admin, gin.H{"useProxiesForBalancer": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "useProxiesForBalancer").Bool())
	assert.True(t, f.cfg.ProxiesEnabled())

	persisted, err := f.backend.GetConfig(context.Background(), proxyToggleConfigKey)
	require.NoError(t, err)
	assert.Equal(t, "true", persisted)
}

func TestGetKeysAPI(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sites.AddSite(ctx, "unsupported.example.com"))
	require.NoError(t, f.sites.AddKey(ctx, "unsupported.example.com", "sk-1", balancer.UnsupportedBalance))
	require.NoError(t, f.sites.AddKey(ctx, "unsupported.example.com", "sk-2", balancer.UnsupportedBalance))

	adminUser, err := f.users.ByUsername(ctx, testAdminUser)
	require.NoError(t, err)
	apiKey := adminUser.APIKey

	call := func(path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		w := httptest.NewRecorder()
		f.engine.ServeHTTP(w, req)
		return w
	}

	w := call("/$/v1/getKeys?site=unsupported.example.com", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call("/$/v1/getKeys?site=unsupported.example.com", "not-a-key")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call("/$/v1/getKeys", apiKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call("/$/v1/getKeys?site=missing.example.com", apiKey)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call("/$/v1/getKeys?site=unsupported.example.com", apiKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "keys.#").Int())

	// count clamps to what the site holds.
	w = call("/$/v1/getKeys?site=unsupported.example.com&count=5", apiKey)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "keys.#").Int())

	// Non-member callers cannot see that the site exists.
	bob, err := f.users.Create(ctx, "bob", "bob-pass", false)
	require.NoError(t, err)
	w = call("/$/v1/getKeys?site=unsupported.example.com", bob.APIKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPrecheckedKeysAPI(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.sites.AddSite(ctx, "unsupported.example.com"))
	// The cap applies to the requested count after clamping to what the
	// site holds, so enough keys have to exist for count to stay above it.
	for i := 0; i < 12; i++ {
		require.NoError(t, f.sites.AddKey(ctx, "unsupported.example.com", "sk-"+strconv.Itoa(i+1), balancer.UnsupportedBalance))
	}

	adminUser, err := f.users.ByUsername(ctx, testAdminUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/$/v1/getPrecheckedKeys?site=unsupported.example.com&count=50", nil)
	req.Header.Set("Authorization", "Bearer "+adminUser.APIKey)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "count cannot be greater than 10")

	// Unsupported providers skip the probe and return stored tokens directly.
	req = httptest.NewRequest(http.MethodGet, "/$/v1/getPrecheckedKeys?site=unsupported.example.com", nil)
	req.Header.Set("Authorization", "Bearer "+adminUser.APIKey)
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "keys.#").Int())
	assert.True(t, strings.HasPrefix(gjson.Get(w.Body.String(), "keys.0").String(), "sk-"))
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 1, parseCount("", 5))
	assert.Equal(t, 1, parseCount("abc", 5))
	assert.Equal(t, 1, parseCount("0", 5))
	assert.Equal(t, 1, parseCount("-3", 5))
	assert.Equal(t, 3, parseCount("3", 5))
	assert.Equal(t, 5, parseCount("9", 5))
	assert.Equal(t, 0, parseCount("1", 0))
}
