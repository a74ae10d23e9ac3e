package service

import (
	"net/http"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		inject bool
		want   string
	}{
		{"injects version", "/api/objects/documents", true, "/api/v24.1/objects/documents"},
		{"collapses and unescapes", "/api//objects/documents%3A123", true, "/api/v24.1/objects/documents:123"},
		{"keeps existing version", "/api/v23.2/objects/documents", true, "/api/v23.2/objects/documents"},
		{"keeps major-only version", "/api/v25/query", true, "/api/v25/query"},
		{"segment starting with v is not a version", "/api/vault/objects", true, "/api/v24.1/vault/objects"},
		{"injection disabled", "/api//query", false, "/api/query"},
		{"non-api path untouched", "/other//path", true, "/other/path"},
		{"bare api root", "/api", true, "/api"},
		{"invalid escape left as is", "/api/objects/%zz", true, "/api/v24.1/objects/%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePath(tt.path, "v24.1", tt.inject)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestBackendURL(t *testing.T) {
	got := backendURL("https", "acme.veevavault.com", "/api/v24.1/objects/documents:123", "limit=5")
	want := "https://acme.veevavault.com/api/v24.1/objects/documents:123?limit=5"
	if got != want {
		t.Errorf("backendURL() = %q, want %q", got, want)
	}
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		name   string
		next   string
		want   string
		wantOK bool
	}{
		{"host relative", "/api/v24.1/query/abc?pagesize=2", "https://acme.veevavault.com/api/v24.1/query/abc?pagesize=2", true},
		{"absolute url", "https://evil.example.com/api/v24.1/query/abc", "", false},
		{"scheme relative", "//evil.example.com/api", "", false},
		{"not rooted", "api/v24.1/query/abc", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pageURL("https", "acme.veevavault.com", tt.next)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("pageURL(%q) = (%q, %v), want (%q, %v)", tt.next, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFilterRequestHeaders(t *testing.T) {
	src := http.Header{
		"Accept":              {"application/json"},
		"Content-Type":        {"application/json"},
		"Authorization":       {"Bearer caller"},
		"Un":                  {"alice"},
		"Pw":                  {"s3cret"},
		"Cookie":              {"a=b"},
		"X-Vaultapi-Clientid": {"gateway"},
		"X-Forwarded-For":     {"1.2.3.4"},
	}

	dst := filterRequestHeaders(src)

	tests := []struct {
		name    string
		key     string
		wantLen int
	}{
		{"Accept forwarded", "Accept", 1},
		{"Content-Type forwarded", "Content-Type", 1},
		{"backend client id forwarded", "X-VaultAPI-ClientID", 1},
		{"caller Authorization stripped", "Authorization", 0},
		{"un stripped", "un", 0},
		{"pw stripped", "pw", 0},
		{"Cookie stripped", "Cookie", 0},
		{"X-Forwarded-For stripped", "X-Forwarded-For", 0},
		{"User-Agent injected", "User-Agent", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := len(dst.Values(tt.key))
			if got != tt.wantLen {
				t.Errorf("header %q: got %d values, want %d", tt.key, got, tt.wantLen)
			}
		})
	}

	if ua := dst.Get("User-Agent"); ua != userAgent {
		t.Errorf("User-Agent = %q, want %q", ua, userAgent)
	}
}

func TestFilterResponseHeaders(t *testing.T) {
	src := http.Header{
		"Content-Type":                   {"application/octet-stream"},
		"Content-Disposition":            {`attachment; filename="a.pdf"`},
		"Responsetype":                   {"file"},
		"Set-Cookie":                     {"session=abc"},
		"Transfer-Encoding":              {"chunked"},
		"X-Vaultapi-Burstlimitremaining": {"1999"},
	}

	dst := filterResponseHeaders(src)

	tests := []struct {
		name    string
		key     string
		wantLen int
	}{
		{"Content-Type relayed", "Content-Type", 1},
		{"Content-Disposition relayed", "Content-Disposition", 1},
		{"responseType relayed", "responseType", 1},
		{"burst limit relayed", "X-VaultAPI-BurstLimitRemaining", 1},
		{"Set-Cookie dropped", "Set-Cookie", 0},
		{"Transfer-Encoding dropped", "Transfer-Encoding", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := len(dst.Values(tt.key))
			if got != tt.wantLen {
				t.Errorf("header %q: got %d values, want %d", tt.key, got, tt.wantLen)
			}
		})
	}
}
