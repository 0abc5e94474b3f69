package balancer

import (
	"context"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// geminiProbeTimeout bounds the generation probe. A key that gets as far as
// actually generating answers slower than any quota/auth rejection, so the
// timer firing first is read as "working paid key". This is a heuristic
// carried over from observed provider behavior, not a guaranteed property:
// rejections settle in well under a second while real generations run long.
const geminiProbeTimeout = 3 * time.Second

var geminiInvalidMarkers = []string{
	"API key not valid",
	"API Key not found",
	"API key expired",
	"has not been used in project",
	"are blocked",
	"has been suspended",
}

var geminiFreeMarkers = []string{
	"limit: 0",
	"exceeded your current quota",
	"Quota exceeded for",
}

// GeminiStrategy races a minimal generateContent call against a 3 second
// timer. Whichever settles first wins; when the timer wins, the in-flight
// request is cancelled and its eventual result discarded.
type GeminiStrategy struct {
	dispatcher *Dispatcher
	url        string
	timeout    time.Duration
}

func NewGeminiStrategy(d *Dispatcher) *GeminiStrategy {
	return &GeminiStrategy{
		dispatcher: d,
		url:        "https://generativelanguage.googleapis.com/v1beta/models/gemini-3-pro-preview:generateContent",
		timeout:    geminiProbeTimeout,
	}
}

type geminiResult struct {
	body []byte
	err  error
}

func (s *GeminiStrategy) Check(ctx context.Context, token string) (Classification, error) {
	body, _ := sjson.SetBytes([]byte(`{}`), "contents.0.role", "user")
	body, _ = sjson.SetBytes(body, "contents.0.parts.0.text", "tell me a 2 sentence story.")

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan geminiResult, 1)
	go func() {
		_, data, err := s.dispatcher.Fetch(probeCtx, http.MethodPost, s.url+"?key="+token,
			map[string]string{"Content-Type": "application/json"}, body)
		results <- geminiResult{body: data, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		// Timer won the race: treat the still-running generation as proof of
		// a working paid key and detach from it.
		return Paid("Paid Key"), nil
	case res := <-results:
		if res.err != nil {
			return Classification{}, res.err
		}
		return classifyGeminiBody(res.body), nil
	case <-ctx.Done():
		return Classification{}, ctx.Err()
	}
}

func classifyGeminiBody(data []byte) Classification {
	msg := gjson.GetBytes(data, "error.message").String()

	for _, marker := range geminiInvalidMarkers {
		if strings.Contains(msg, marker) {
			return Invalid()
		}
	}
	if strings.Contains(msg, "reported as leaked") {
		return Leaked()
	}
	for _, marker := range geminiFreeMarkers {
		if strings.Contains(msg, marker) {
			return Free("Free Key")
		}
	}

	log.WithFields(log.Fields{"provider": "gemini.google", "body": string(data)}).Debug("unrecognized gemini response")
	return Unknown("")
}
