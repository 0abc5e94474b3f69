package balancer

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"keybalancer-go/internal/monitoring"
	log "github.com/sirupsen/logrus"
)

// ProxySource supplies egress proxy endpoints for outbound probes. PickProxy
// returns a uniformly-random member of the currently available set, or false
// when none are configured.
type ProxySource interface {
	PickProxy() (string, bool)
}

const (
	defaultProbeTimeout = 30 * time.Second
	maxProbeBody        = 1 << 20
)

// Dispatcher issues a single outbound HTTP request per call, optionally
// through an egress proxy. Proxy use is decided per request: when the
// deployment enables it and the source has members, one proxy is picked at
// random; otherwise the request goes out direct.
type Dispatcher struct {
	direct  *http.Client
	proxies ProxySource
	enabled func() bool

	mu      sync.Mutex
	proxied map[string]*http.Client
}

// NewDispatcher builds a dispatcher with the default transport timeouts.
// proxies may be nil and enabled may be nil (both mean "never proxy").
func NewDispatcher(proxies ProxySource, enabled func() bool) *Dispatcher {
	return &Dispatcher{
		direct:  newProbeClient(nil),
		proxies: proxies,
		enabled: enabled,
		proxied: make(map[string]*http.Client),
	}
}

func newProbeClient(proxy func(*http.Request) (*url.URL, error)) *http.Client {
	tr := &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: defaultProbeTimeout}
}

func (d *Dispatcher) client() *http.Client {
	if d.proxies == nil || d.enabled == nil || !d.enabled() {
		return d.direct
	}
	proxy, ok := d.proxies.PickProxy()
	if !ok {
		return d.direct
	}
	u, err := url.Parse(normalizeProxyURL(proxy))
	if err != nil {
		log.WithError(err).WithField("proxy", proxy).Debug("unparsable proxy endpoint, going direct")
		return d.direct
	}
	monitoring.ProxiedProbesTotal.Inc()
	d.mu.Lock()
	defer d.mu.Unlock()
	if cli, ok := d.proxied[u.String()]; ok {
		return cli
	}
	cli := newProbeClient(http.ProxyURL(u))
	d.proxied[u.String()] = cli
	return cli
}

// Do sends the request through a freshly selected client (direct or proxied).
func (d *Dispatcher) Do(req *http.Request) (*http.Response, error) {
	return d.client().Do(req)
}

// Fetch is the convenience form used by strategies: one request, headers set,
// body fully read (capped) and the connection closed. It is the only path
// strategies use for outbound traffic, so every probe honors the proxy flag.
func (d *Dispatcher) Fetch(ctx context.Context, method, rawURL string, headers map[string]string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := d.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// normalizeProxyURL makes bare host:port endpoints parseable by url.Parse.
func normalizeProxyURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "http://" + endpoint
}
