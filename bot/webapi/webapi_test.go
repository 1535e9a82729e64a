package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOraclePulseParsesOutputValue(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pulse": map[string]any{
				// Leading 16 hex digits are 0x00000000000000ff.
				"outputValue": "00000000000000ff" + strings.Repeat("ab", 24),
			},
		})
	}))
	defer srv.Close()

	o := NewOracleClient(OracleConfig{BeaconURL: srv.URL}, srv.Client())
	got, err := o.Pulse(context.Background())
	if err != nil {
		t.Fatalf("pulse: %v", err)
	}
	if got != 0xff {
		t.Fatalf("pulse = %#x, want 0xff", got)
	}
}

func TestOraclePulseRejectsBadHex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pulse": map[string]any{"outputValue": "not-hex"},
		})
	}))
	defer srv.Close()

	o := NewOracleClient(OracleConfig{BeaconURL: srv.URL}, srv.Client())
	if _, err := o.Pulse(context.Background()); err == nil {
		t.Fatal("expected error for malformed pulse")
	}
}

func TestOracleCompleteStripsQuotes(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization header = %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "tell me" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `  "The stars align."  `}},
			},
		})
	}))
	defer srv.Close()

	o := NewOracleClient(OracleConfig{CompletionURL: srv.URL, APIKey: "secret"}, srv.Client())
	got, err := o.Complete(context.Background(), "tell me")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "The stars align." {
		t.Fatalf("complete = %q", got)
	}
}

func TestOracleCompleteWithoutKey(t *testing.T) {
	t.Parallel()
	o := NewOracleClient(OracleConfig{}, nil)
	if _, err := o.Complete(context.Background(), "hi"); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestOracleCompleteServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOracleClient(OracleConfig{CompletionURL: srv.URL, APIKey: "k"}, srv.Client())
	if _, err := o.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestSubtitleSummarize(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.URL != "https://youtu.be/abc" {
			t.Errorf("url = %q", req.URL)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "A short talk about ducks."})
	}))
	defer srv.Close()

	c := NewSubtitleClient(SubtitleConfig{URL: srv.URL}, srv.Client())
	got, err := c.Summarize(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "A short talk about ducks." {
		t.Fatalf("summary = %q", got)
	}
}

func TestSubtitleSummarizeRemoteFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "video too long"})
	}))
	defer srv.Close()

	c := NewSubtitleClient(SubtitleConfig{URL: srv.URL}, srv.Client())
	if _, err := c.Summarize(context.Background(), "https://youtu.be/abc"); err == nil || !strings.Contains(err.Error(), "video too long") {
		t.Fatalf("err = %v, want remote failure", err)
	}
}
