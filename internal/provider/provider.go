// Package provider adapts third-party flight data APIs to normalized status
// and position payloads.
//
// Adapters return (nil, nil) when the provider has nothing for a flight and
// an error only for transport or decoding failures. API-level errors that
// arrive in a well-formed response are surfaced as a payload carrying Error.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

// ErrNoCredentials is returned when a provider is requested without the
// credentials it needs.
var ErrNoCredentials = errors.New("provider credentials not configured")

// StatusProvider fetches the live status for one flight. Implementations
// must treat rec as read-only.
type StatusProvider interface {
	Kind() domain.ProviderKind
	FetchStatus(ctx context.Context, rec *domain.FlightRecord) (*domain.StatusPayload, error)
}

// PositionProvider fetches a live-tracking fix for one flight.
type PositionProvider interface {
	Kind() domain.ProviderKind
	FetchPosition(ctx context.Context, rec *domain.FlightRecord) (*domain.Position, error)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Provider domain.ProviderKind
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Code, e.Body)
}

// Retryable reports whether the response signals a transient condition.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

const maxErrorBody = 300

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getJSON issues a GET and decodes a JSON body into out. Non-2xx responses
// become a *StatusError carrying the head of the body.
func getJSON(ctx context.Context, client *http.Client, kind domain.ProviderKind, rawURL string, params url.Values, header http.Header, out any) error {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", kind, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: executing request: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading body: %w", kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &StatusError{Provider: kind, Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: parsing response: %w", kind, err)
	}
	return nil
}

// utcString renders t as RFC 3339 UTC, or "" for nil.
func utcString(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
