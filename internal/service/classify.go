package service

import (
	"fmt"
	"io"

	"vault-gateway/internal/model"
)

// maxEnvelopeBytes bounds how much of a JSON backend response is buffered.
const maxEnvelopeBytes = 64 << 20

func isSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

// readEnvelope consumes and closes resp and turns it into either a successful
// envelope or a *GatewayError. A page is a success only when the HTTP status
// is 2xx and the envelope's responseStatus passes the policy's check.
func readEnvelope(resp *model.BackendResponse, op string, policy model.Policy) (*model.Envelope, error) {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return nil, newError(KindTransport, op, nil, fmt.Errorf("read backend response: %w", err))
	}

	if !isSuccessStatus(resp.StatusCode) {
		kind := KindTransport
		if policy.HTTPErrorPolicy == model.HTTPErrorLogical {
			if env, perr := model.ParseEnvelope(raw); perr == nil && env.HasStatus() {
				kind = KindBackendLogical
			}
		}
		return nil, newError(kind, op, raw, fmt.Errorf("%w: HTTP %d", ErrBackendHTTP, resp.StatusCode))
	}

	env, err := model.ParseEnvelope(raw)
	if err != nil {
		return nil, newError(KindTransport, op, raw, fmt.Errorf("parse backend response: %w", err))
	}
	if !env.Succeeded(policy.StrictStatus) {
		return nil, newError(KindBackendLogical, op, raw, fmt.Errorf("%w: responseStatus %q", ErrBackendStatus, env.ResponseStatus))
	}
	return env, nil
}
