package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"vault-gateway/internal/service"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	e := echo.New()
	e.Use(RequestLogger(logger, "X-Operation-Id"))
	e.POST("/api/query", func(c echo.Context) error {
		c.Request().Header.Del("X-Operation-Id")
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/query", http.NoBody)
	req.Header.Set("X-Operation-Id", "VqlQuery")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry["operation"] != "VqlQuery" {
		t.Errorf("operation = %v, want VqlQuery", entry["operation"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
}

func TestRequestLogger_GatewayFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	e := echo.New()
	e.Use(RequestLogger(logger, "X-Operation-Id"))
	e.POST("/api/query", func(c echo.Context) error {
		c.Response().Header().Set(service.ErrorKindHeader, string(service.KindAuthFailure))
		return c.String(http.StatusBadRequest, "failed to get sessionId")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/query", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if entry["error_kind"] != string(service.KindAuthFailure) {
		t.Errorf("error_kind = %v, want %s", entry["error_kind"], service.KindAuthFailure)
	}
	if _, ok := entry["operation"]; ok {
		t.Error("operation attribute should be omitted when the header is absent")
	}
}
