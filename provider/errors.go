package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Failure kinds. Errors returned by this package are marked with exactly one of
// these; test with errors.Is.
var (
	ErrNotConfigured  = errors.New("provider not configured")
	ErrInvalidRequest = errors.New("invalid request")
	ErrProvider       = errors.New("provider error")
	ErrNetwork        = errors.New("network error")
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

func notConfigured(what string) error {
	return errors.Mark(errors.Newf("%s is not configured: missing API key", what), ErrNotConfigured)
}

func invalidRequest(msg string) error {
	return errors.Mark(errors.New(msg), ErrInvalidRequest)
}

func providerError(msg string) error {
	return errors.Mark(errors.New(msg), ErrProvider)
}

// ErrorMessage extracts a human-readable message from an error response body.
// It understands {"error": "..."}, {"error": {"message": "..."}},
// {"errors": [{"message": "..."}]}, {"message": "..."} and {"detail": "..."};
// anything else is returned as trimmed text.
func ErrorMessage(body []byte) string {
	var shape struct {
		Error   json.RawMessage `json:"error"`
		Errors  []errorEntry    `json:"errors"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &shape); err == nil {
		if msg := rawMessage(shape.Error); msg != "" {
			return msg
		}
		for _, e := range shape.Errors {
			if e.Message != "" {
				return e.Message
			}
		}
		if shape.Message != "" {
			return shape.Message
		}
		if msg := rawMessage(shape.Detail); msg != "" {
			return msg
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return "empty response from provider"
}

type errorEntry struct {
	Message string `json:"message"`
}

// rawMessage reads a field that is either a string or an object with a message.
func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Message
	}
	return ""
}

// postJSON sends body to url and decodes a 2xx response into out. Non-2xx answers
// are classified: 400 and 422 are invalid requests, everything else a provider error.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Mark(errors.Wrap(err, "request failed"), ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := ErrorMessage(raw)
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return invalidRequest(msg)
		}
		return providerError(msg)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "read response"), ErrNetwork)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Mark(errors.Wrap(err, "malformed provider response"), ErrProvider)
	}
	return nil
}
