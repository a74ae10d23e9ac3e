// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
)

// Operation identifies which of the supported backend behaviors a call performs.
type Operation string

const (
	// OpQuery runs a VQL query and merges every result page.
	OpQuery Operation = "VqlQuery"
	// OpListItems lists file staging items at a path and merges every page.
	OpListItems Operation = "ListItemsAtPath"
	// OpDownloadContent relays raw item content without pagination.
	OpDownloadContent Operation = "DownloadItemContent"
)

// Operations is the closed set of recognized operations.
var Operations = []Operation{OpQuery, OpListItems, OpDownloadContent}

// ParseOperation returns the Operation matching id, or false if id is not recognized.
func ParseOperation(id string) (Operation, bool) {
	for _, op := range Operations {
		if string(op) == id {
			return op, true
		}
	}
	return "", false
}

// RequiresAuth reports whether the operation needs a backend session.
func (o Operation) RequiresAuth() bool {
	switch o {
	case OpQuery, OpListItems, OpDownloadContent:
		return true
	}
	return false
}

// CarriesAPIVersion reports whether the operation's backend path has the API
// version inserted after /api/. ListItemsAtPath paths carry a user file path
// and are forwarded without the version rewrite.
func (o Operation) CarriesAPIVersion() bool {
	return o == OpQuery || o == OpDownloadContent
}

// Paginated reports whether the operation follows next_page cursors.
func (o Operation) Paginated() bool {
	return o == OpQuery || o == OpListItems
}

// BackendRequest is a prepared request to the backend. It is owned by a single
// inbound call and never shared.
type BackendRequest struct {
	Ctx      context.Context
	Method   string
	Host     string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// BackendResponse is a backend (or synthesized) response to be written back
// to the caller. The caller is responsible for closing Body.
type BackendResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
