package balancer

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// proxyPattern accepts "[scheme://][user:pass@]host:port".
var proxyPattern = regexp.MustCompile(`^(https?://)?([a-zA-Z0-9\-._~%!$&'()*+,;=:@]+)@?([a-zA-Z0-9.\-]+):(\d{1,5})$`)

const (
	proxyProbeAttempts = 3
	proxyProbeDelay    = time.Second
	proxyEchoEndpoint  = "https://myip.wtf/text"
)

// HTTPSProxyStrategy validates a stored proxy endpoint by actually routing a
// request through it. The "credential" here is the proxy string itself, so
// this strategy builds its own client instead of using the shared dispatcher:
// the probe is meaningless unless it egresses through the candidate.
type HTTPSProxyStrategy struct {
	echoURL string
}

func NewHTTPSProxyStrategy() *HTTPSProxyStrategy {
	return &HTTPSProxyStrategy{echoURL: proxyEchoEndpoint}
}

func (s *HTTPSProxyStrategy) Check(ctx context.Context, proxy string) (Classification, error) {
	if !proxyPattern.MatchString(proxy) {
		return Invalid(), nil
	}
	port, err := strconv.Atoi(proxyPattern.FindStringSubmatch(proxy)[4])
	if err != nil || port < 1 || port > 65535 {
		return Invalid(), nil
	}

	u, err := url.Parse(normalizeProxyURL(proxy))
	if err != nil {
		return Invalid(), nil
	}
	client := newProbeClient(http.ProxyURL(u))

	for i := 0; i < proxyProbeAttempts; i++ {
		if i > 0 {
			select {
			case <-time.After(proxyProbeDelay):
			case <-ctx.Done():
				return Invalid(), nil
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.echoURL, nil)
		if err != nil {
			return Invalid(), nil
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		code := resp.StatusCode
		resp.Body.Close()

		if code == http.StatusProxyAuthRequired {
			return Invalid(), nil
		}
		if code >= 200 && code < 300 {
			return Paid("Valid!"), nil
		}
	}
	return Invalid(), nil
}
