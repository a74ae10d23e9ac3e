package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"vault-gateway/internal/config"
	"vault-gateway/internal/service"
)

// passwordPattern matches password values in form bodies and JSON embedded in diagnostics.
var passwordPattern = regexp.MustCompile(`(?i)(password=|"password"\s*:\s*")[^&\s"]*`)

// GatewayHandler turns inbound HTTP requests into gateway calls.
type GatewayHandler struct {
	dispatcher *service.Dispatcher
	cfg        *config.Config
	logger     *slog.Logger
}

// NewGatewayHandler creates a GatewayHandler.
func NewGatewayHandler(d *service.Dispatcher, cfg *config.Config, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		dispatcher: d,
		cfg:        cfg,
		logger:     logger.With("component", "gateway_handler"),
	}
}

// Handle runs the operation named by the operation header and writes its
// result: the merged or relayed backend response on success, a plain-text 400
// on any failure.
func (h *GatewayHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return h.mapError(c, err)
	}

	opID := req.Header.Get(h.cfg.Backend.OperationHeader)
	host := req.Header.Get(h.cfg.Backend.HostHeader)
	if host == "" {
		host = h.cfg.Backend.DefaultHost
	}
	req.Header.Del(h.cfg.Backend.OperationHeader)
	req.Header.Del(h.cfg.Backend.HostHeader)

	call := &service.InboundCall{
		Ctx:         req.Context(),
		OperationID: opID,
		Host:        strings.ToLower(host),
		Method:      req.Method,
		Path:        req.URL.EscapedPath(),
		RawQuery:    req.URL.RawQuery,
		Header:      req.Header,
		Body:        body,
	}

	resp, err := h.dispatcher.Dispatch(call)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		c.Response().Header()[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent when streaming starts; a copy failure
	// (client disconnect, backend reset) leaves a truncated body, so it is
	// only logged.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"operation", opID,
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *GatewayHandler) mapError(c echo.Context, err error) error {
	kind := service.KindOf(err)
	diagnostic := err.Error()
	var ge *service.GatewayError
	if errors.As(err, &ge) {
		diagnostic = ge.Diagnostic()
	}

	h.logger.Error("gateway call failed",
		"kind", kind,
		"reason", failureReason(err),
		"err", sanitize(err.Error()),
		"diagnostic", sanitize(diagnostic),
		"path", c.Request().URL.Path,
	)

	// Backend bodies go to the caller verbatim; only login failures, which may
	// echo the submitted form, are redacted.
	if kind == service.KindAuthFailure {
		diagnostic = sanitize(diagnostic)
	}

	c.Response().Header().Set(service.ErrorKindHeader, string(kind))
	return c.String(http.StatusBadRequest, diagnostic)
}

// failureReason gives a short operator-facing cause for transport errors.
func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "backend request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "client disconnected"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "backend host unreachable"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "backend connection failed"
	}

	return string(service.KindOf(err))
}

// sanitize redacts passwords from text that may echo a login request.
func sanitize(s string) string {
	return passwordPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
