package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Header names set on every delivery.
const (
	HeaderEventID   = "X-FlightStatus-Event-ID"
	HeaderSignature = "X-FlightStatus-Signature"
)

type HTTPSender struct {
	client *http.Client
}

func NewHTTPSender() *HTTPSender {
	return &HTTPSender{
		client: &http.Client{},
	}
}

// Send posts the payload with an HMAC-SHA256 signature of the body.
func (s *HTTPSender) Send(ctx context.Context, req Request) Result {
	start := time.Now()

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return Result{Error: fmt.Errorf("marshal: %w", err), Duration: time.Since(start)}
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderEventID, req.EventID)
	httpReq.Header.Set(HeaderSignature, computeSignature(req.Secret, body))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Result{Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	return Result{StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received body against its signature header.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
