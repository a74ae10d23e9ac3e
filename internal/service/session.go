package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"vault-gateway/internal/client"
	"vault-gateway/internal/config"
	"vault-gateway/internal/credentials"
	"vault-gateway/internal/metrics"
	"vault-gateway/internal/model"
)

// Authenticator exchanges credentials for a backend session ID. It keeps no
// state between calls: every inbound call logs in once.
type Authenticator struct {
	client  *client.BackendClient
	scheme  string
	version string
	policy  model.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAuthenticator creates an Authenticator. The metrics parameter is optional.
func NewAuthenticator(c *client.BackendClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Authenticator {
	// A login reply without SUCCESS or WARNING never yields a session,
	// whatever the status policy for operation responses.
	policy := cfg.GatewayPolicy()
	policy.StrictStatus = true

	return &Authenticator{
		client:  c,
		scheme:  cfg.Backend.Scheme,
		version: cfg.Backend.APIVersion,
		policy:  policy,
		logger:  logger.With("component", "authenticator"),
		metrics: m,
	}
}

// Authenticate logs in to host and returns the session ID. A single attempt
// is made; any failure is returned as a *GatewayError of kind KindAuthFailure.
func (a *Authenticator) Authenticate(ctx context.Context, host string, creds credentials.Credentials) (string, error) {
	const op = "authenticate"

	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("User-Agent", userAgent)

	authURL := backendURL(a.scheme, host, "/api/"+a.version+"/auth", "")
	a.logger.Debug("getting sessionId", "host", host, "username", creds.Username)

	resp, err := a.client.Send(ctx, metrics.CallAuth, http.MethodPost, authURL, header, strings.NewReader(form.Encode()))
	if err != nil {
		a.record("error")
		return "", newError(KindAuthFailure, op, nil, fmt.Errorf("%w: %w", ErrAuthFailed, err))
	}

	env, err := readEnvelope(resp, op, a.policy)
	if err != nil {
		a.record("rejected")
		var ge *GatewayError
		if errors.As(err, &ge) {
			return "", newError(KindAuthFailure, op, ge.Body, fmt.Errorf("%w: %w", ErrAuthFailed, ge.Err))
		}
		return "", newError(KindAuthFailure, op, nil, fmt.Errorf("%w: %w", ErrAuthFailed, err))
	}

	a.logger.Info("got sessionId", "host", host, "response_status", env.ResponseStatus)
	a.record("success")
	return env.StringField("sessionId"), nil
}

func (a *Authenticator) record(result string) {
	if a.metrics != nil {
		a.metrics.AuthAttempts.WithLabelValues(result).Inc()
	}
}
