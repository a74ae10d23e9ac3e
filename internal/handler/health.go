package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"vault-gateway/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information. It never includes credentials.
func (h *HealthHandler) Status(c echo.Context) error {
	p := h.cfg.GatewayPolicy()
	return c.JSON(http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           string(h.version),
		"api_version":       h.cfg.Backend.APIVersion,
		"default_host":      h.cfg.Backend.DefaultHost,
		"credential_source": string(p.CredentialSource),
		"version_injection": p.VersionInjection,
		"strict_status":     p.StrictStatus,
		"http_error_policy": string(p.HTTPErrorPolicy),
	})
}
