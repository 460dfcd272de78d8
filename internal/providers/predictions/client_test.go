package predictions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateSendsModelAndInput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		if r.Method != http.MethodPost || r.URL.Path != "/v1/predictions" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload createRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Model != "bg-eraser-v2" {
			t.Fatalf("unexpected model: %s", payload.Model)
		}
		if payload.Input["image"] != "https://x/in.png" {
			t.Fatalf("unexpected input: %+v", payload.Input)
		}
		_ = json.NewEncoder(w).Encode(Prediction{ID: "pred-1", Status: StatusStarting})
	}))
	defer ts.Close()

	client := NewHTTPClient(Options{APIKey: "test-key", BaseURL: ts.URL})
	got, err := client.Create(context.Background(), "bg-eraser-v2", map[string]any{"image": "https://x/in.png"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "pred-1" || got.Status != StatusStarting {
		t.Fatalf("unexpected prediction: %+v", got)
	}
}

func TestGetReturnsTerminalOutput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/predictions/pred-1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Prediction{
			ID:     "pred-1",
			Status: StatusSucceeded,
			Output: json.RawMessage(`["https://x/out.png"]`),
		})
	}))
	defer ts.Close()

	client := NewHTTPClient(Options{BaseURL: ts.URL})
	got, err := client.Get(context.Background(), "pred-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !got.Status.Terminal() {
		t.Fatalf("status %s should be terminal", got.Status)
	}
	if string(got.Output) != `["https://x/out.png"]` {
		t.Fatalf("unexpected output: %s", got.Output)
	}
}

func TestDoRejectsErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewHTTPClient(Options{BaseURL: ts.URL})
	if _, err := client.Get(context.Background(), "pred-1"); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusStarting:   false,
		StatusProcessing: false,
		StatusSucceeded:  true,
		StatusFailed:     true,
		StatusCanceled:   true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Fatalf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}
