package balancer

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// cnyPerUSD is the fixed conversion rate applied to CNY balance entries.
const cnyPerUSD = 7.10

// DeepseekStrategy reads the account balance endpoint and sums every
// currency entry into a single USD figure.
type DeepseekStrategy struct {
	dispatcher *Dispatcher
	url        string
}

func NewDeepseekStrategy(d *Dispatcher) *DeepseekStrategy {
	return &DeepseekStrategy{dispatcher: d, url: "https://api.deepseek.com/user/balance"}
}

func (s *DeepseekStrategy) Check(ctx context.Context, token string) (Classification, error) {
	headers := map[string]string{
		"Accept":        "application/json",
		"Authorization": "Bearer " + token,
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

	if apiErr := gjson.GetBytes(data, "error"); apiErr.Exists() {
		log.WithFields(log.Fields{"provider": "deepseek.com", "error": apiErr.String()}).Debug("deepseek api error")
		return Unknown("Unknown Error"), nil
	}

	// Deepseek sometimes reports its own upstream auth trouble through
	// error_msg instead of a status code; that is throttling, not a verdict.
	if strings.Contains(gjson.GetBytes(data, "error_msg").String(), "401 errors detected") {
		return RateLimited(), nil
	}

	total := 0.0
	for _, info := range gjson.GetBytes(data, "balance_infos").Array() {
		amount := info.Get("total_balance").Float()
		switch info.Get("currency").String() {
		case "USD":
			total += amount
		case "CNY":
			total += amount / cnyPerUSD
		}
	}
	return Balance(total), nil
}
