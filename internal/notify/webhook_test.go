package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tubloo/hacs-flight-status-tracker/internal/domain"
)

func testRequest(url, secret string) Request {
	return Request{
		URL:     url,
		Secret:  secret,
		Timeout: 5 * time.Second,
		EventID: "event-1",
		Payload: Payload{
			EventID: "event-1",
			Type:    eventType,
			Change: domain.StateChange{
				FlightKey:  "AI-157-DEL-2026-01-31",
				FlightIATA: "AI157",
				PrevState:  "scheduled",
				State:      "active",
			},
			SentAt: "2026-01-30T12:00:00Z",
		},
	}
}

func TestHTTPSender_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	result := NewHTTPSender().Send(context.Background(), testRequest(server.URL, "secret"))

	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.StatusCode != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", result.StatusCode)
	}
	if !result.IsSuccess() {
		t.Error("204 should count as success")
	}
}

func TestHTTPSender_HeadersAndSignature(t *testing.T) {
	var gotHeaders http.Header
	var gotMethod string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	secret := "notify-secret"
	NewHTTPSender().Send(context.Background(), testRequest(server.URL, secret))

	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if id := gotHeaders.Get(HeaderEventID); id != "event-1" {
		t.Errorf("%s = %q, want event-1", HeaderEventID, id)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	expectedSig := hex.EncodeToString(mac.Sum(nil))
	if sig := gotHeaders.Get(HeaderSignature); sig != expectedSig {
		t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", sig, expectedSig)
	}

	var payload Payload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}
	if payload.Type != "flight.state_changed" {
		t.Errorf("Type = %q", payload.Type)
	}
	if payload.Change.FlightKey != "AI-157-DEL-2026-01-31" || payload.Change.State != "active" {
		t.Errorf("unexpected change in body: %+v", payload.Change)
	}
}

func TestHTTPSender_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result := NewHTTPSender().Send(context.Background(), testRequest(server.URL, "secret"))

	if result.Error != nil {
		t.Errorf("server error should not set Error field, got: %v", result.Error)
	}
	if result.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", result.StatusCode)
	}
}

func TestHTTPSender_ConnectionError(t *testing.T) {
	req := testRequest("http://localhost:1", "secret")
	req.Timeout = time.Second

	result := NewHTTPSender().Send(context.Background(), req)
	if result.Error == nil {
		t.Error("expected connection error, got nil")
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"event_id":"e1"}`)
	sig := computeSignature(secret, body)

	if !VerifySignature(secret, body, sig) {
		t.Error("valid signature rejected")
	}
	if VerifySignature("wrong-secret", body, sig) {
		t.Error("wrong secret accepted")
	}
	if VerifySignature(secret, []byte(`{"event_id":"e2"}`), sig) {
		t.Error("tampered body accepted")
	}
	if len(sig) != 64 {
		t.Errorf("signature length should be 64 hex chars, got %d", len(sig))
	}
}
