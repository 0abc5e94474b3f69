package balancer

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Strategy probes a single credential against its provider and produces a
// Classification. The returned error is reserved for transport failures
// (DNS, connection refused, TLS, timeout); every recognizable provider
// answer, including "this key is garbage", is a Classification value.
type Strategy interface {
	Check(ctx context.Context, token string) (Classification, error)
}

// BasicConfig tunes the generic single-request REST probe.
type BasicConfig struct {
	// TokenHeader names the header carrying the raw credential. Empty means
	// "Authorization: Bearer <token>".
	TokenHeader string
	// ExtraHeaders are added verbatim to every probe.
	ExtraHeaders map[string]string
	// ValidCode is the status meaning "key works". Zero means 200.
	ValidCode int
	// InvalidCodes are statuses meaning "key rejected". 401 is always
	// treated as invalid whether or not it is listed here.
	InvalidCodes []int
	// Method defaults to GET.
	Method string
	// SuccessLabel overrides the default "Valid Key" text.
	SuccessLabel string
}

// BasicStrategy covers providers whose key validity falls out of one
// authenticated request against a stable endpoint.
type BasicStrategy struct {
	dispatcher *Dispatcher
	provider   string
	url        string
	cfg        BasicConfig
}

func NewBasicStrategy(d *Dispatcher, provider, url string, cfg BasicConfig) *BasicStrategy {
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.ValidCode == 0 {
		cfg.ValidCode = http.StatusOK
	}
	if cfg.SuccessLabel == "" {
		cfg.SuccessLabel = "Valid Key"
	}
	return &BasicStrategy{dispatcher: d, provider: provider, url: url, cfg: cfg}
}

func (b *BasicStrategy) Check(ctx context.Context, token string) (Classification, error) {
	headers := make(map[string]string, len(b.cfg.ExtraHeaders)+1)
	if b.cfg.TokenHeader != "" {
		headers[b.cfg.TokenHeader] = token
	} else {
		headers["Authorization"] = "Bearer " + token
	}
	for k, v := range b.cfg.ExtraHeaders {
		headers[k] = v
	}

	code, _, err := b.dispatcher.Fetch(ctx, b.cfg.Method, b.url, headers, nil)
	if err != nil {
		return Classification{}, err
	}

	if code == http.StatusUnauthorized {
		return Invalid(), nil
	}
	for _, invalid := range b.cfg.InvalidCodes {
		if code == invalid {
			return Invalid(), nil
		}
	}
	if code == b.cfg.ValidCode {
		return Paid(b.cfg.SuccessLabel), nil
	}

	log.WithFields(log.Fields{"provider": b.provider, "status": code}).Debug("unexpected probe status")
	return Unknown(""), nil
}
