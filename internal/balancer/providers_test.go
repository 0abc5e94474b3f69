package balancer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonServer(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestCartesiaStrategy(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   Classification
	}{
		{"401 invalid", 401, Invalid()},
		{"402 free plan", 402, Free("Free Key")},
		{"anything else is paid", 400, Paid("Paid Key")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewCartesiaStrategy(newTestDispatcher())
			s.url = jsonServer(t, tc.status, `{}`)
			got, err := s.Check(context.Background(), "tok")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDeepgramStrategy(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Classification
	}{
		{"bad request code", `{"err_code":"BAD_REQUEST","err_msg":"invalid credentials"}`, Invalid()},
		{"forbidden still proves credits", `{"err_code":"FORBIDDEN"}`, Paid("Has Credits")},
		{"granted token", `{"access_token":"jwt","expires_in":30}`, Paid("Has Credits")},
		{"unrecognized body", `{"whoami":"?"}`, Unknown("")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewDeepgramStrategy(newTestDispatcher())
			s.url = jsonServer(t, 200, tc.body)
			got, err := s.Check(context.Background(), "tok")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGeminiVideoStrategy(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Classification
	}{
		{"error 400 invalid", `{"error":{"code":400,"message":"API key not valid"}}`, Invalid()},
		{"error 429 free", `{"error":{"code":429,"message":"quota"}}`, Free("Free Key")},
		{"operation name means paid", `{"name":"models/veo/operations/abc123"}`, Paid("Paid Key")},
		{"unrecognized body", `{}`, Unknown("")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewGeminiVideoStrategy(newTestDispatcher())
			s.url = jsonServer(t, 200, tc.body)
			got, err := s.Check(context.Background(), "tok")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIPInfoStrategy(t *testing.T) {
	t.Run("403 invalid", func(t *testing.T) {
		s := NewIPInfoStrategy(newTestDispatcher())
		s.url = jsonServer(t, 403, `{}`)
		got, err := s.Check(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, Invalid(), got)
	})
	t.Run("asn present means paid", func(t *testing.T) {
		s := NewIPInfoStrategy(newTestDispatcher())
		s.url = jsonServer(t, 200, `{"ip":"8.8.8.8","asn":{"asn":"AS15169"}}`)
		got, err := s.Check(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, Paid("Paid Key"), got)
	})
	t.Run("no asn means free", func(t *testing.T) {
		s := NewIPInfoStrategy(newTestDispatcher())
		s.url = jsonServer(t, 200, `{"ip":"8.8.8.8"}`)
		got, err := s.Check(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, Free("Free Key"), got)
	})
}

func TestVPNAPIStrategy(t *testing.T) {
	t.Run("key goes out as query parameter", func(t *testing.T) {
		var seen string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = r.URL.Query().Get("key")
			w.WriteHeader(200)
		}))
		t.Cleanup(srv.Close)

		s := NewVPNAPIStrategy(newTestDispatcher())
		s.url = srv.URL
		got, err := s.Check(context.Background(), "to k&en")
		require.NoError(t, err)
		assert.Equal(t, Paid("Valid Key"), got)
		assert.Equal(t, "to k&en", seen)
	})
	t.Run("403 invalid", func(t *testing.T) {
		s := NewVPNAPIStrategy(newTestDispatcher())
		s.url = jsonServer(t, 403, `{}`)
		got, err := s.Check(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, Invalid(), got)
	})
}
