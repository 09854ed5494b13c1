package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClassifyStatus_Codes(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, StatusClass2xx},
		{204, StatusClass2xx},
		{400, StatusClass4xx},
		{429, StatusClass4xx},
		{500, StatusClass5xx},
		{503, StatusClass5xx},
		{302, StatusClassOtherError},
		{0, StatusClassOtherError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			if got := ClassifyStatus(tt.code, nil); got != tt.want {
				t.Errorf("ClassifyStatus(%d, nil) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"wrapped deadline", fmt.Errorf("POST webhook: %w", context.DeadlineExceeded), StatusClassTimeout},
		{"timeout text", errors.New("i/o timeout"), StatusClassTimeout},
		{"no such host", errors.New("dial tcp: lookup hooks.invalid: no such host"), StatusClassConnectionError},
		{"other", errors.New("unexpected EOF"), StatusClassOtherError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// An error wins over any status code.
			if got := ClassifyStatus(200, tt.err); got != tt.want {
				t.Errorf("ClassifyStatus(200, %v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus_RealClientErrors(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	client := &http.Client{Timeout: 20 * time.Millisecond}
	_, err := client.Get(slow.URL)
	if got := ClassifyStatus(0, err); got != StatusClassTimeout {
		t.Errorf("client timeout classified as %q (err=%v)", got, err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	_, err = http.Get(url)
	if got := ClassifyStatus(0, err); got != StatusClassConnectionError {
		t.Errorf("refused connection classified as %q (err=%v)", got, err)
	}
}
