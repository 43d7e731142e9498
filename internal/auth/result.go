package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// VerificationResult is the authority's answer for an active credential.
// Raw is stored verbatim; the other fields are read from it for caching
// and logging only.
type VerificationResult struct {
	Active    bool
	Subject   string
	Roles     []string
	ExpiresAt time.Time
	Raw       json.RawMessage
}

// verificationPayload lists the fields the gateway reads. Realm services
// read realm_access.roles from the same JSON.
type verificationPayload struct {
	Active      *bool        `json:"active"`
	Subject     string       `json:"sub"`
	Exp         *json.Number `json:"exp"`
	RealmAccess *struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

var errMissingActive = errors.New(`response has no "active" field`)

// ParseResult decodes an authority response body. A body without an
// "active" field fails with ErrMalformed, an inactive one with
// ErrInactive.
func ParseResult(body []byte) (*VerificationResult, error) {
	result, err := decodeResult(body)
	if err != nil {
		return nil, err
	}
	if !result.Active {
		return nil, inactive(0, nil)
	}
	return result, nil
}

func decodeResult(body []byte) (*VerificationResult, error) {
	var payload verificationPayload

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, malformed(0, err)
	}
	if payload.Active == nil {
		return nil, malformed(0, errMissingActive)
	}

	result := &VerificationResult{
		Active:  *payload.Active,
		Subject: payload.Subject,
		Raw:     json.RawMessage(append([]byte(nil), bytes.TrimSpace(body)...)),
	}
	if payload.RealmAccess != nil {
		result.Roles = payload.RealmAccess.Roles
	}
	if payload.Exp != nil {
		if secs, err := payload.Exp.Float64(); err == nil && secs > 0 {
			result.ExpiresAt = time.Unix(int64(secs), 0)
		}
	}
	return result, nil
}
