package balancer

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// DeepgramStrategy exercises the auth-grant endpoint. Deepgram answers with
// err_code strings rather than meaningful HTTP statuses: BAD_REQUEST is a
// rejected key, while FORBIDDEN (no grant scope) or a minted access token
// both prove the key is live and funded.
type DeepgramStrategy struct {
	dispatcher *Dispatcher
	url        string
}

func NewDeepgramStrategy(d *Dispatcher) *DeepgramStrategy {
	return &DeepgramStrategy{dispatcher: d, url: "https://api.deepgram.com/v1/auth/grant"}
}

func (s *DeepgramStrategy) Check(ctx context.Context, token string) (Classification, error) {
	headers := map[string]string{"Authorization": "Token " + token}

	_, data, err := s.dispatcher.Fetch(ctx, http.MethodPost, s.url, headers, nil)
	if err != nil {
		return Classification{}, err
	}

	errCode := gjson.GetBytes(data, "err_code").String()
	if errCode == "BAD_REQUEST" {
		return Invalid(), nil
	}
	if errCode == "FORBIDDEN" || gjson.GetBytes(data, "access_token").Exists() {
		return Paid("Has Credits"), nil
	}

	log.WithFields(log.Fields{"provider": "deepgram.com", "body": string(data)}).Debug("unrecognized deepgram response")
	return Unknown(""), nil
}
