package model

import (
	"encoding/json"
	"fmt"
)

// Backend responseStatus values.
const (
	StatusSuccess = "SUCCESS"
	StatusWarning = "WARNING"
	StatusFailure = "FAILURE"
)

// Envelope is the JSON wrapper the backend returns for query-type calls.
// Fields other than responseStatus, data and responseDetails are kept in
// Extra so re-encoding does not drop anything the backend sent.
type Envelope struct {
	ResponseStatus  string
	Data            []json.RawMessage
	ResponseDetails map[string]json.RawMessage
	Extra           map[string]json.RawMessage

	hasStatus  bool
	hasData    bool
	hasDetails bool
}

// ParseEnvelope decodes a backend response body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("envelope: expected a JSON object")
	}

	*e = Envelope{}

	if raw, ok := fields["responseStatus"]; ok {
		// A non-string status is kept as its raw text so it fails the success check.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		e.ResponseStatus = s
		e.hasStatus = true
		delete(fields, "responseStatus")
	}
	if raw, ok := fields["data"]; ok {
		if err := json.Unmarshal(raw, &e.Data); err != nil {
			return fmt.Errorf("envelope: data: %w", err)
		}
		e.hasData = true
		delete(fields, "data")
	}
	if raw, ok := fields["responseDetails"]; ok {
		if err := json.Unmarshal(raw, &e.ResponseDetails); err != nil {
			return fmt.Errorf("envelope: responseDetails: %w", err)
		}
		e.hasDetails = true
		delete(fields, "responseDetails")
	}

	e.Extra = fields
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Extra)+3)
	for k, v := range e.Extra {
		out[k] = v
	}
	if e.hasStatus || e.ResponseStatus != "" {
		s, err := json.Marshal(e.ResponseStatus)
		if err != nil {
			return nil, err
		}
		out["responseStatus"] = s
	}
	// Fields the backend sent as null are written back as null.
	if e.hasData || e.Data != nil {
		d, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		out["data"] = d
	}
	if e.hasDetails || e.ResponseDetails != nil {
		d, err := json.Marshal(e.ResponseDetails)
		if err != nil {
			return nil, err
		}
		out["responseDetails"] = d
	}
	return json.Marshal(out)
}

// HasStatus reports whether the backend sent a responseStatus field.
func (e *Envelope) HasStatus() bool {
	return e.hasStatus
}

// Succeeded reports whether the envelope signals success. In strict mode only
// SUCCESS and WARNING pass; otherwise only an explicit FAILURE fails.
func (e *Envelope) Succeeded(strict bool) bool {
	if strict {
		return e.ResponseStatus == StatusSuccess || e.ResponseStatus == StatusWarning
	}
	return e.ResponseStatus != StatusFailure
}

// NextPage returns the responseDetails.next_page cursor, or "" when there is none.
func (e *Envelope) NextPage() string {
	raw, ok := e.ResponseDetails["next_page"]
	if !ok {
		return ""
	}
	var next string
	if err := json.Unmarshal(raw, &next); err != nil {
		return ""
	}
	return next
}

// StringField returns a top-level string field outside the typed ones, or ""
// when it is absent or not a string.
func (e *Envelope) StringField(key string) string {
	raw, ok := e.Extra[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Annotate sets a top-level field on the envelope.
func (e *Envelope) Annotate(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if e.Extra == nil {
		e.Extra = make(map[string]json.RawMessage)
	}
	e.Extra[key] = b
	return nil
}
