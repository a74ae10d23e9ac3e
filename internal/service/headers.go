package service

import (
	"net/http"
	"strings"
)

const userAgent = "vault-gateway/1.0"

// forwardableRequestHeaders are the only inbound headers forwarded to the backend.
// Accept-Encoding is left to the transport so JSON bodies arrive decoded.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
}

// forwardableResponseHeaders are the only backend headers relayed for raw downloads.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":        true,
	"Content-Length":      true,
	"Content-Disposition": true,
	"Cache-Control":       true,
	"Date":                true,
	"Etag":                true,
	"Last-Modified":       true,
	"Responsetype":        true,
}

// backendHeaderPrefix marks backend-specific headers that pass in both directions.
const backendHeaderPrefix = "x-vaultapi-"

func filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	for key, vals := range src {
		if strings.HasPrefix(strings.ToLower(key), backendHeaderPrefix) {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		ck := http.CanonicalHeaderKey(key)
		if forwardableResponseHeaders[ck] || strings.HasPrefix(strings.ToLower(key), backendHeaderPrefix) {
			dst[ck] = vals
		}
	}
	return dst
}
