package balancer

import (
	"context"
	"net/http"
	"net/url"
)

// VPNAPIStrategy looks up a fixed address with the credential as a query
// parameter; anything other than a 403 means the key is accepted.
type VPNAPIStrategy struct {
	dispatcher *Dispatcher
	url        string
}

func NewVPNAPIStrategy(d *Dispatcher) *VPNAPIStrategy {
	return &VPNAPIStrategy{dispatcher: d, url: "https://vpnapi.io/api/8.8.8.8"}
}

func (s *VPNAPIStrategy) Check(ctx context.Context, token string) (Classification, error) {
	code, _, err := s.dispatcher.Fetch(ctx, http.MethodGet, s.url+"?key="+url.QueryEscape(token), nil, nil)
	if err != nil {
		return Classification{}, err
	}

	if code == http.StatusForbidden {
		return Invalid(), nil
	}
	return Paid("Valid Key"), nil
}
