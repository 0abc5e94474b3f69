package balancer

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// GeminiVideoStrategy starts a long-running video generation. Only paid keys
// may start one, so the probe classifies off the launch response alone: the
// returned operation name proves a paid key and the operation itself is
// abandoned. No timeout race here; the launch call returns quickly either way.
type GeminiVideoStrategy struct {
	dispatcher *Dispatcher
	url        string
}

func NewGeminiVideoStrategy(d *Dispatcher) *GeminiVideoStrategy {
	return &GeminiVideoStrategy{
		dispatcher: d,
		url:        "https://generativelanguage.googleapis.com/v1beta/models/veo-3.0-generate-preview:predictLongRunning",
	}
}

func (s *GeminiVideoStrategy) Check(ctx context.Context, token string) (Classification, error) {
	body, _ := sjson.SetBytes([]byte(`{}`), "instances.0.prompt", "a quiet harbor at dawn")

	_, data, err := s.dispatcher.Fetch(ctx, http.MethodPost, s.url+"?key="+token,
		map[string]string{"Content-Type": "application/json"}, body)
	if err != nil {
		return Classification{}, err
	}

	switch gjson.GetBytes(data, "error.code").Int() {
	case http.StatusBadRequest:
		return Invalid(), nil
	case http.StatusTooManyRequests:
		return Free("Free Key"), nil
	}
	if gjson.GetBytes(data, "name").String() != "" {
		return Paid("Paid Key"), nil
	}

	log.WithFields(log.Fields{"provider": "veo.google", "body": string(data)}).Debug("unrecognized veo response")
	return Unknown(""), nil
}
