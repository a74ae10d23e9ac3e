package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"vault-gateway/internal/client"
	"vault-gateway/internal/config"
	"vault-gateway/internal/metrics"
	"vault-gateway/internal/model"
)

// hostAnnotation is the top-level field added to merged results.
const hostAnnotation = "request-host-domain"

// Fetcher executes a prepared backend request and follows next_page cursors
// until the result set is complete. Pages are fetched strictly one after
// another, since each cursor is only known once the previous page is parsed.
type Fetcher struct {
	client   *client.BackendClient
	scheme   string
	maxPages int
	policy   model.Policy
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewFetcher creates a Fetcher. The metrics parameter is optional.
func NewFetcher(c *client.BackendClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		client:   c,
		scheme:   cfg.Backend.Scheme,
		maxPages: cfg.Backend.MaxPages,
		policy:   cfg.GatewayPolicy(),
		logger:   logger.With("component", "fetcher"),
		metrics:  m,
	}
}

// Fetch sends req with the session token and merges every page's data into
// one envelope. Any failing page aborts the whole fetch; partial results are
// never returned.
func (f *Fetcher) Fetch(op model.Operation, req *model.BackendRequest, token string) (*model.BackendResponse, error) {
	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Authorization", token)

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	resp, err := f.client.Send(req.Ctx, metrics.CallOperation, req.Method, backendURL(f.scheme, req.Host, req.Path, req.RawQuery), header, body)
	if err != nil {
		return nil, newError(KindTransport, string(op), nil, err)
	}
	status := resp.StatusCode

	env, err := readEnvelope(resp, string(op), f.policy)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("page fetched", "operation", op, "page", 1, "response_status", env.ResponseStatus, "records", len(env.Data))

	data := env.Data
	pages := 1
	for next := nextCursor(op, env); next != ""; next = nextCursor(op, env) {
		pageOp := fmt.Sprintf("%s page %d", op, pages+1)

		if f.maxPages > 0 && pages >= f.maxPages {
			return nil, newError(KindBackendLogical, pageOp, nil, fmt.Errorf("%w: more than %d pages", ErrBackendStatus, f.maxPages))
		}
		nextURL, ok := pageURL(f.scheme, req.Host, next)
		if !ok {
			return nil, newError(KindBackendLogical, pageOp, nil, fmt.Errorf("%w: next_page %q is not host-relative", ErrBackendStatus, next))
		}

		f.logger.Debug("following next_page", "operation", op, "next", next)
		env, err = f.fetchPage(req, nextURL, token, pageOp)
		if err != nil {
			return nil, err
		}
		pages++
		data = append(data, env.Data...)
	}

	if f.metrics != nil {
		f.metrics.PagesFetched.WithLabelValues(string(op)).Observe(float64(pages))
	}

	env.Data = data
	if err := env.Annotate(hostAnnotation, req.Host); err != nil {
		return nil, newError(KindTransport, string(op), nil, err)
	}
	merged, err := json.Marshal(env)
	if err != nil {
		return nil, newError(KindTransport, string(op), nil, fmt.Errorf("encode merged response: %w", err))
	}

	f.logger.Info("fetch complete", "operation", op, "pages", pages, "records", len(data))

	return &model.BackendResponse{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(merged)),
	}, nil
}

// nextCursor returns env's next_page cursor when op is paginated.
func nextCursor(op model.Operation, env *model.Envelope) string {
	if !op.Paginated() {
		return ""
	}
	return env.NextPage()
}

// fetchPage requests one continuation page with the inbound method and session.
func (f *Fetcher) fetchPage(req *model.BackendRequest, target, token, op string) (*model.Envelope, error) {
	header := http.Header{}
	header.Set("Authorization", token)
	header.Set("Accept", "application/json")
	header.Set("User-Agent", userAgent)

	resp, err := f.client.Send(req.Ctx, metrics.CallPage, req.Method, target, header, nil)
	if err != nil {
		return nil, newError(KindTransport, op, nil, err)
	}
	return readEnvelope(resp, op, f.policy)
}
