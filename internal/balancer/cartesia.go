package balancer

import (
	"context"
	"net/http"
)

// CartesiaStrategy probes the voice-clone endpoint: a free-plan key is told
// to pay (402) before the request body is ever looked at, so no body is sent.
type CartesiaStrategy struct {
	dispatcher *Dispatcher
	url        string
}

func NewCartesiaStrategy(d *Dispatcher) *CartesiaStrategy {
	return &CartesiaStrategy{dispatcher: d, url: "https://api.cartesia.ai/voices/clone"}
}

func (s *CartesiaStrategy) Check(ctx context.Context, token string) (Classification, error) {
	headers := map[string]string{
		"Authorization":    "Bearer " + token,
		"Cartesia-Version": "2025-04-16",
		"Content-Type":     "multipart/form-data",
	}

	code, _, err := s.dispatcher.Fetch(ctx, http.MethodPost, s.url, headers, nil)
	if err != nil {
		return Classification{}, err
	}

	switch code {
	case http.StatusUnauthorized:
		return Invalid(), nil
	case http.StatusPaymentRequired:
		return Free("Free Key"), nil
	}
	return Paid("Paid Key"), nil
}
