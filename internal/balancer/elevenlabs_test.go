package balancer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func elevenServer(t *testing.T, status int, body string) *ElevenLabsStrategy {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	s := NewElevenLabsStrategy(newTestDispatcher())
	s.url = srv.URL
	return s
}

func TestElevenLabsStrategy(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   Classification
	}{
		{"free tier", 200, `{"tier":"free"}`, Free("Free Tier")},
		{"starter ranks first", 200, `{"tier":"starter"}`, Paid("T1 (Starter)")},
		{"creator ranks second", 200, `{"tier":"creator"}`, Paid("T2 (Creator)")},
		{"pro ranks third", 200, `{"tier":"pro"}`, Paid("T3 (Pro)")},
		{"unknown tier", 200, `{"tier":"enterprise"}`, Unknown("Unknown Tier")},
		{"401 invalid", 401, `{}`, Invalid()},
		{"429 rate limited", 429, `{}`, RateLimited()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := elevenServer(t, tc.status, tc.body)
			got, err := s.Check(context.Background(), "xi-key")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
