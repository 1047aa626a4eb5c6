package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/upb/context-retrieval/services/search"
	"go.uber.org/zap"
)

const (
	providerName = "remote"

	// maxResponseBytes bounds how much of a provider response is read
	maxResponseBytes = 8 << 20
)

// Config holds connection settings for the remote search API
type Config struct {
	BaseURL string
	APIKey  string
	Index   string
	Timeout time.Duration
	Headers map[string]string
}

// Adapter implements search.Provider over the JSON HTTP search API.
type Adapter struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAdapter creates a new remote search adapter
func NewAdapter(config Config, logger *zap.Logger) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// Search posts the query to /indexes/{index}/search. There is no retry: any
// failure is returned to the caller as a *search.ProviderError.
func (a *Adapter) Search(ctx context.Context, q search.Query) (*search.Response, error) {
	startTime := time.Now()

	reqBody, err := json.Marshal(q)
	if err != nil {
		return nil, search.NewProviderError(a.Name(), search.CodeRequest, "failed to marshal request", 0, false, err)
	}

	endpoint := fmt.Sprintf("%s/indexes/%s/search", a.config.BaseURL, url.PathEscape(a.config.Index))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, search.NewProviderError(a.Name(), search.CodeRequest, "failed to create request", 0, false, err)
	}
	a.setHeaders(httpReq)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, search.NewProviderError(a.Name(), search.CodeTimeout, "search request timed out", 0, true, err)
		}
		return nil, search.NewProviderError(a.Name(), search.CodeHTTP, "search request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, search.NewProviderError(a.Name(), search.CodeTimeout, "search response timed out", httpResp.StatusCode, true, err)
		}
		return nil, search.NewProviderError(a.Name(), search.CodeRead, "failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	resp, err := parseResponse(respBody)
	if err != nil {
		return nil, search.NewProviderError(a.Name(), search.CodeMalformed, "malformed search response", httpResp.StatusCode, false, err)
	}
	resp.Latency = time.Since(startTime)

	a.logger.Debug("search completed",
		zap.String("index", a.config.Index),
		zap.Int("limit", q.Limit),
		zap.Int("total", resp.Total),
		zap.Int("documents", len(resp.Documents)),
		zap.Duration("latency", resp.Latency))

	return resp, nil
}

// Health checks GET /health
func (a *Adapter) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/health", nil)
	if err != nil {
		return search.NewProviderError(a.Name(), search.CodeRequest, "failed to create health request", 0, false, err)
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return search.NewProviderError(a.Name(), search.CodeUnavailable, "search provider unreachable", 0, true, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return search.NewProviderError(a.Name(), search.CodeUnavailable,
			fmt.Sprintf("search provider health returned %d", resp.StatusCode), resp.StatusCode, true, nil)
	}
	return nil
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
}

// handleErrorResponse builds a ProviderError for a non-2xx status. The body's
// message is kept on the error for logs only.
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("search provider returned status %d", statusCode)

	var detail string
	if gjson.ValidBytes(body) {
		detail = gjson.GetBytes(body, "error.message").String()
		if detail == "" {
			detail = gjson.GetBytes(body, "message").String()
		}
	}
	var cause error
	if detail != "" {
		cause = errors.New(detail)
	}

	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests
	return search.NewProviderError(a.Name(), search.CodeStatus, message, statusCode, retryable, cause)
}

// parseResponse reads {total, documents:[{id, score, data}]}. Ids may be
// strings or numbers; a missing total falls back to the document count.
func parseResponse(body []byte) (*search.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, errors.New("response is not a JSON object")
	}

	docs := root.Get("documents")
	if !docs.Exists() {
		docs = root.Get("hits")
	}
	if !docs.Exists() || docs.Type == gjson.Null {
		return &search.Response{Total: int(root.Get("total").Int()), Documents: []search.Document{}}, nil
	}
	if !docs.IsArray() {
		return nil, errors.New("documents is not an array")
	}

	resp := &search.Response{Documents: make([]search.Document, 0, len(docs.Array()))}
	var parseErr error
	docs.ForEach(func(_, doc gjson.Result) bool {
		if !doc.IsObject() {
			parseErr = errors.New("document is not an object")
			return false
		}
		score := doc.Get("score")
		if score.Exists() && score.Type != gjson.Number {
			parseErr = fmt.Errorf("document %q has a non-numeric score", doc.Get("id").String())
			return false
		}
		d := search.Document{
			ID:    doc.Get("id").String(),
			Score: score.Float(),
		}
		if data := doc.Get("data"); data.Exists() && data.IsObject() {
			d.Data = json.RawMessage(data.Raw)
		}
		resp.Documents = append(resp.Documents, d)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	if total := root.Get("total"); total.Exists() {
		resp.Total = int(total.Int())
	} else {
		resp.Total = len(resp.Documents)
	}
	return resp, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
