package balancer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// elevenTiers lists the paid plans lowest to highest; index+1 is the rank we
// report ("T1 (Starter)" .. "T3 (Pro)").
var elevenTiers = []string{"starter", "creator", "pro"}

// ElevenLabsStrategy reads the subscription endpoint and maps the tier field
// onto a ranked label.
type ElevenLabsStrategy struct {
	dispatcher *Dispatcher
	url        string
}

func NewElevenLabsStrategy(d *Dispatcher) *ElevenLabsStrategy {
	return &ElevenLabsStrategy{dispatcher: d, url: "https://api.elevenlabs.io/v1/user/subscription"}
}

func (s *ElevenLabsStrategy) Check(ctx context.Context, token string) (Classification, error) {
	headers := map[string]string{
		"Accept":     "application/json",
		"xi-api-key": token,
	}

	code, data, err := s.dispatcher.Fetch(ctx, http.MethodGet, s.url, headers, nil)
	if err != nil {
		return Classification{}, err
	}

	switch code {
	case http.StatusUnauthorized:
		return Invalid(), nil
	case http.StatusTooManyRequests:
		return RateLimited(), nil
	}

	tier := strings.ToLower(gjson.GetBytes(data, "tier").String())
	if tier == "free" {
		return Free("Free Tier"), nil
	}
	for i, known := range elevenTiers {
		if tier == known {
			return Paid(fmt.Sprintf("T%d (%s%s)", i+1, strings.ToUpper(tier[:1]), tier[1:])), nil
		}
	}
	return Unknown("Unknown Tier"), nil
}
