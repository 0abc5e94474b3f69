package balancer

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// CaptchaStrategy handles captcha-solver providers exposing a getBalance
// endpoint keyed by the credential itself.
type CaptchaStrategy struct {
	dispatcher *Dispatcher
	provider   string
	url        string
}

func NewCaptchaStrategy(d *Dispatcher, provider, url string) *CaptchaStrategy {
	return &CaptchaStrategy{dispatcher: d, provider: provider, url: url}
}

func (c *CaptchaStrategy) Check(ctx context.Context, token string) (Classification, error) {
	body, _ := sjson.SetBytes([]byte(`{}`), "clientKey", token)
	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}

	_, data, err := c.dispatcher.Fetch(ctx, http.MethodPost, c.url, headers, body)
	if err != nil {
		return Classification{}, err
	}

	// Providers signal failure with a truthy errorCode; 0/""/false/null mean ok.
	if truthy(gjson.GetBytes(data, "errorCode")) {
		return Invalid(), nil
	}

	bal := gjson.GetBytes(data, "balance")
	if !bal.Exists() {
		log.WithFields(log.Fields{"provider": c.provider, "body": string(data)}).Debug("balance field missing from captcha response")
		return Unknown(""), nil
	}
	return Balance(bal.Float()), nil
}

// truthy mirrors loose-JSON truthiness: non-empty strings, non-zero numbers
// and literal true all count.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	case gjson.True:
		return true
	}
	return false
}
