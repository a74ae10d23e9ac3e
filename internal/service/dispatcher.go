// Package service implements the gateway core: operation dispatch, backend
// session login and paginated fetching.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"vault-gateway/internal/client"
	"vault-gateway/internal/config"
	"vault-gateway/internal/credentials"
	"vault-gateway/internal/metrics"
	"vault-gateway/internal/model"
)

// sessionHeader echoes the session ID back to the caller on downloads.
const sessionHeader = "sessionId"

// InboundCall is one request received from the caller.
type InboundCall struct {
	Ctx         context.Context
	OperationID string
	Host        string
	Method      string
	Path        string
	RawQuery    string
	Header      http.Header
	Body        []byte
}

// Dispatcher classifies inbound calls by operation and runs them against the
// backend. It holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	cfg     *config.Config
	policy  model.Policy
	creds   credentials.Source
	auth    *Authenticator
	fetcher *Fetcher
	client  *client.BackendClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates a Dispatcher. The metrics parameter is optional.
func NewDispatcher(c *client.BackendClient, src credentials.Source, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		policy:  cfg.GatewayPolicy(),
		creds:   src,
		auth:    NewAuthenticator(c, cfg, logger, m),
		fetcher: NewFetcher(c, cfg, logger, m),
		client:  c,
		logger:  logger.With("component", "dispatcher"),
		metrics: m,
	}
}

// Dispatch runs one inbound call to completion. On success the caller must
// close the returned body; every failure is a *GatewayError.
func (d *Dispatcher) Dispatch(call *InboundCall) (resp *model.BackendResponse, err error) {
	start := time.Now()
	d.logger.Info("action started",
		"operation", call.OperationID,
		"host", call.Host,
		"method", call.Method,
		"path", call.Path,
	)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(KindOf(err))
		}
		if d.metrics != nil {
			d.metrics.OperationsTotal.WithLabelValues(operationLabel(call.OperationID), outcome).Inc()
		}
		d.logger.Info("action finished",
			"operation", call.OperationID,
			"host", call.Host,
			"outcome", outcome,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	op, ok := model.ParseOperation(call.OperationID)
	if !ok {
		return nil, newError(KindUnknownOperation, "dispatch", nil,
			fmt.Errorf("%w: %s", ErrUnknownOperation, call.OperationID))
	}

	token, err := d.session(op, call)
	if err != nil {
		return nil, err
	}

	switch op {
	case model.OpQuery:
		return d.handleQuery(call, token)
	case model.OpListItems:
		return d.handleListItems(call, token)
	case model.OpDownloadContent:
		return d.handleDownload(call, token)
	}
	return nil, newError(KindUnknownOperation, "dispatch", nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op))
}

// session checks the target host and logs in when op requires it. Credential
// headers are always removed from the inbound call, whatever the source.
func (d *Dispatcher) session(op model.Operation, call *InboundCall) (string, error) {
	const stage = "authenticate"

	if call.Header == nil {
		call.Header = http.Header{}
	}
	defer credentials.StripHeaders(call.Header)

	if call.Host == "" {
		return "", newError(KindInvalidRequest, stage, nil,
			fmt.Errorf("%w: no backend host; send %s or set backend.default_host", ErrInvalidRequest, d.cfg.Backend.HostHeader))
	}
	if !d.cfg.HostAllowed(call.Host) {
		return "", newError(KindUnrecognizedHost, stage, nil,
			fmt.Errorf("%w: %s", credentials.ErrUnrecognizedHost, call.Host))
	}
	if !op.RequiresAuth() {
		return "", nil
	}

	creds, err := d.creds.Resolve(call.Ctx, call.Host, call.Header)
	if err != nil {
		kind := KindAuthFailure
		if errors.Is(err, credentials.ErrUnrecognizedHost) {
			kind = KindUnrecognizedHost
		}
		return "", newError(kind, stage, nil, fmt.Errorf("%w: %w", ErrAuthFailed, err))
	}

	return d.auth.Authenticate(call.Ctx, call.Host, creds)
}

// prepare builds the backend request for op from the inbound call.
func (d *Dispatcher) prepare(op model.Operation, call *InboundCall) *model.BackendRequest {
	inject := d.policy.VersionInjection && op.CarriesAPIVersion()
	return &model.BackendRequest{
		Ctx:      call.Ctx,
		Method:   call.Method,
		Host:     call.Host,
		Path:     NormalizePath(call.Path, d.cfg.Backend.APIVersion, inject),
		RawQuery: call.RawQuery,
		Header:   filterRequestHeaders(call.Header),
		Body:     call.Body,
	}
}

func (d *Dispatcher) handleQuery(call *InboundCall, token string) (*model.BackendResponse, error) {
	req := d.prepare(model.OpQuery, call)

	body, err := queryForm(call.Body)
	if err != nil {
		return nil, newError(KindInvalidRequest, string(model.OpQuery), nil, err)
	}
	req.Body = body
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return d.fetcher.Fetch(model.OpQuery, req, token)
}

func (d *Dispatcher) handleListItems(call *InboundCall, token string) (*model.BackendResponse, error) {
	return d.fetcher.Fetch(model.OpListItems, d.prepare(model.OpListItems, call), token)
}

// handleDownload relays the backend response untouched. The body may be
// binary, so a failed download is reported with its raw bytes and never parsed.
func (d *Dispatcher) handleDownload(call *InboundCall, token string) (*model.BackendResponse, error) {
	op := string(model.OpDownloadContent)
	req := d.prepare(model.OpDownloadContent, call)
	req.Header.Set("Authorization", token)

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	resp, err := d.client.Send(req.Ctx, metrics.CallOperation, req.Method, backendURL(d.cfg.Backend.Scheme, req.Host, req.Path, req.RawQuery), req.Header, body)
	if err != nil {
		return nil, newError(KindTransport, op, nil, err)
	}

	if !isSuccessStatus(resp.StatusCode) {
		defer func() { _ = resp.Body.Close() }()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
		return nil, newError(KindTransport, op, raw, fmt.Errorf("%w: HTTP %d", ErrBackendHTTP, resp.StatusCode))
	}

	d.logger.Info("download item content", "response_type", resp.Header.Get("responseType"))

	header := filterResponseHeaders(resp.Header)
	header.Set(sessionHeader, token)
	resp.Header = header
	return resp, nil
}

// queryForm turns the inbound JSON body into the backend's form body,
// keeping only the q field. An empty body yields an empty query.
func queryForm(body []byte) ([]byte, error) {
	var q string
	if len(bytes.TrimSpace(body)) > 0 {
		var in map[string]json.RawMessage
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, fmt.Errorf("%w: body must be a JSON object: %w", ErrInvalidRequest, err)
		}
		if raw, ok := in["q"]; ok {
			if err := json.Unmarshal(raw, &q); err != nil {
				// Non-string q values are sent as their JSON text.
				q = string(raw)
			}
		}
	}
	form := url.Values{}
	form.Set("q", q)
	return []byte(form.Encode()), nil
}

// operationLabel bounds the operation metric label to known operations.
func operationLabel(id string) string {
	if op, ok := model.ParseOperation(id); ok {
		return string(op)
	}
	return "unknown"
}
