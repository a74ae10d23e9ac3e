package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-gateway/internal/client"
	"vault-gateway/internal/credentials"
	"vault-gateway/internal/metrics"
)

func newTestAuthenticator(t *testing.T, host string) (*Authenticator, *metrics.Metrics) {
	t.Helper()
	cfg := testConfig(host)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	return NewAuthenticator(client.NewBackendClient(cfg, logger, m), cfg, logger, m), m
}

// authAttempts reads the auth attempt counter for result from the registry.
func authAttempts(t *testing.T, m *metrics.Metrics, result string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "vault_gateway_auth_attempts_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestAuthenticate_Success(t *testing.T) {
	fb := newFakeBackend(t, map[string]http.HandlerFunc{authPath: jsonReply(http.StatusOK, authOK)})
	a, m := newTestAuthenticator(t, fb.host())

	token, err := a.Authenticate(context.Background(), fb.host(), credentials.Credentials{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, testSession, token)

	reqs := fb.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "application/x-www-form-urlencoded", reqs[0].Header.Get("Content-Type"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Accept"))
	assert.Equal(t, float64(1), authAttempts(t, m, "success"))
}

func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantBody string
		result   string
	}{
		{"failure status", http.StatusOK, `{"responseStatus":"FAILURE"}`, `{"responseStatus":"FAILURE"}`, "rejected"},
		{"http error", http.StatusUnauthorized, `denied`, `denied`, "rejected"},
		{"not json", http.StatusOK, `<html></html>`, `<html></html>`, "rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t, map[string]http.HandlerFunc{authPath: jsonReply(tt.status, tt.body)})
			a, m := newTestAuthenticator(t, fb.host())

			_, err := a.Authenticate(context.Background(), fb.host(), credentials.Credentials{Username: "alice", Password: "bad"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAuthFailed)
			assert.Equal(t, KindAuthFailure, KindOf(err))

			var ge *GatewayError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.wantBody, ge.Diagnostic())
			assert.Equal(t, float64(1), authAttempts(t, m, tt.result))
		})
	}
}

func TestAuthenticate_Unreachable(t *testing.T) {
	a, m := newTestAuthenticator(t, "127.0.0.1:1")

	_, err := a.Authenticate(context.Background(), "127.0.0.1:1", credentials.Credentials{Username: "alice", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, KindAuthFailure, KindOf(err))
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, float64(1), authAttempts(t, m, "error"))
}

func TestAuthenticate_LenientPolicyStillRequiresStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"status absent", `{"sessionId":"sess-1"}`},
		{"unknown status", `{"responseStatus":"PARTIAL","sessionId":"sess-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t, map[string]http.HandlerFunc{authPath: jsonReply(http.StatusOK, tt.body)})
			cfg := testConfig(fb.host())
			cfg.Policy.StrictStatus = boolPtr(false)
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			a := NewAuthenticator(client.NewBackendClient(cfg, logger, nil), cfg, logger, nil)

			token, err := a.Authenticate(context.Background(), fb.host(), credentials.Credentials{Username: "alice", Password: "s3cret"})
			require.Error(t, err)
			assert.Empty(t, token)
			assert.Equal(t, KindAuthFailure, KindOf(err))
			assert.ErrorIs(t, err, ErrAuthFailed)
		})
	}
}
