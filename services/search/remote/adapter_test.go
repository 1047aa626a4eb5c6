package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/upb/context-retrieval/services/search"
	"go.uber.org/zap"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAdapter(Config{
		BaseURL: server.URL + "/",
		APIKey:  "test-key",
		Index:   "content",
		Timeout: 2 * time.Second,
	}, zap.NewNop())
}

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter(Config{BaseURL: "http://search:7700/"}, zap.NewNop())

	if adapter.Name() != "remote" {
		t.Errorf("Name() = %s, want remote", adapter.Name())
	}
	if adapter.config.BaseURL != "http://search:7700" {
		t.Errorf("BaseURL = %s, want trailing slash trimmed", adapter.config.BaseURL)
	}
	if adapter.httpClient.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want default 10s", adapter.httpClient.Timeout)
	}
}

func TestAdapter_Search(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery search.Query

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotQuery)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"total": 42,
			"documents": [
				{"id": "doc-1", "score": 0.91, "data": {"title": "Hardening WordPress"}},
				{"id": 77, "score": 0.62, "data": {"title": "Backups"}},
				{"id": "doc-3", "score": 0.4}
			]
		}`))
	})

	resp, err := adapter.Search(context.Background(), search.Query{
		Text:     "WordPress security best practices",
		Fields:   []search.FieldBoost{{Field: "title", Boost: 3}},
		Limit:    20,
		Filter:   `(license:"CC-BY")`,
		MinScore: 0.5,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotPath != "/indexes/content/search" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %s", gotAuth)
	}
	if gotQuery.Text != "WordPress security best practices" || gotQuery.Limit != 20 || gotQuery.Filter != `(license:"CC-BY")` {
		t.Errorf("unexpected request body: %+v", gotQuery)
	}
	if len(gotQuery.Fields) != 1 || gotQuery.Fields[0].Boost != 3 {
		t.Errorf("fields not forwarded: %+v", gotQuery.Fields)
	}

	if resp.Total != 42 {
		t.Errorf("Total = %d, want 42", resp.Total)
	}
	if len(resp.Documents) != 3 {
		t.Fatalf("len(Documents) = %d, want 3", len(resp.Documents))
	}
	if resp.Documents[1].ID != "77" {
		t.Errorf("numeric id = %q, want \"77\"", resp.Documents[1].ID)
	}
	if resp.Documents[0].Score != 0.91 {
		t.Errorf("Score = %v", resp.Documents[0].Score)
	}
	if resp.Documents[2].Data != nil {
		t.Errorf("missing data should stay nil, got %s", resp.Documents[2].Data)
	}
}

func TestAdapter_Search_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantCode   string
		wantStatus int
		retryable  bool
	}{
		{
			name:       "server error",
			status:     http.StatusServiceUnavailable,
			body:       `{"error": {"message": "index warming up"}}`,
			wantCode:   search.CodeStatus,
			wantStatus: http.StatusServiceUnavailable,
			retryable:  true,
		},
		{
			name:       "bad request",
			status:     http.StatusBadRequest,
			body:       `{"message": "unknown field"}`,
			wantCode:   search.CodeStatus,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `not json`,
			wantCode:   search.CodeStatus,
			wantStatus: http.StatusTooManyRequests,
			retryable:  true,
		},
		{
			name:       "malformed json",
			status:     http.StatusOK,
			body:       `{"documents": [`,
			wantCode:   search.CodeMalformed,
			wantStatus: http.StatusOK,
		},
		{
			name:       "documents not an array",
			status:     http.StatusOK,
			body:       `{"documents": {"id": "x"}}`,
			wantCode:   search.CodeMalformed,
			wantStatus: http.StatusOK,
		},
		{
			name:       "non-numeric score",
			status:     http.StatusOK,
			body:       `{"documents": [{"id": "x", "score": "high"}]}`,
			wantCode:   search.CodeMalformed,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := adapter.Search(context.Background(), search.Query{Text: "query text here", Limit: 10})
			if err == nil {
				t.Fatal("expected error")
			}

			provErr, ok := search.AsProviderError(err)
			if !ok {
				t.Fatalf("expected *search.ProviderError, got %T", err)
			}
			if provErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", provErr.Code, tt.wantCode)
			}
			if provErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.wantStatus)
			}
			if provErr.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", provErr.Retryable, tt.retryable)
			}
		})
	}
}

func TestAdapter_Search_NoRetry(t *testing.T) {
	var calls atomic.Int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := adapter.Search(context.Background(), search.Query{Text: "query text here"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("provider called %d times, want exactly 1", calls.Load())
	}
}

func TestAdapter_Search_Timeout(t *testing.T) {
	release := make(chan struct{})
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := adapter.Search(ctx, search.Query{Text: "query text here"})
	provErr, ok := search.AsProviderError(err)
	if !ok {
		t.Fatalf("expected *search.ProviderError, got %v", err)
	}
	if provErr.Code != search.CodeTimeout {
		t.Errorf("Code = %s, want %s", provErr.Code, search.CodeTimeout)
	}
	if provErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", provErr.StatusCode)
	}
}

func TestAdapter_Search_EmptyResponse(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 0, "documents": []}`))
	})

	resp, err := adapter.Search(context.Background(), search.Query{Text: "query text here"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.Total != 0 || len(resp.Documents) != 0 {
		t.Errorf("expected empty response, got %+v", resp)
	}
}

func TestAdapter_Health(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := adapter.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}

	healthy.Store(false)
	if err := adapter.Health(context.Background()); err == nil {
		t.Error("expected unhealthy provider to return an error")
	}
}
