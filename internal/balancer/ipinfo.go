package balancer

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"
)

// IPInfoStrategy looks up a fixed address; only paid plans get ASN data back.
type IPInfoStrategy struct {
	dispatcher *Dispatcher
	url        string
}

func NewIPInfoStrategy(d *Dispatcher) *IPInfoStrategy {
	return &IPInfoStrategy{dispatcher: d, url: "https://ipinfo.io/8.8.8.8"}
}

func (s *IPInfoStrategy) Check(ctx context.Context, token string) (Classification, error) {
	headers := map[string]string{"Authorization": "Bearer " + token}

	code, data, err := s.dispatcher.Fetch(ctx, http.MethodGet, s.url, headers, nil)
	if err != nil {
		return Classification{}, err
	}

	if code == http.StatusForbidden {
		return Invalid(), nil
	}
	if gjson.GetBytes(data, "asn").Exists() {
		return Paid("Paid Key"), nil
	}
	return Free("Free Key"), nil
}
