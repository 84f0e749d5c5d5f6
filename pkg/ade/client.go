// Package ade talks to the document extraction service. Documents are
// submitted as multipart uploads, chew through parse and extract stages
// upstream, and are fetched once the task reports completed.
package ade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Task states reported by the extraction service.
const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// TaskStatus is the upstream view of a submitted document.
type TaskStatus struct {
	State   string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Client submits documents for extraction and retrieves results.
type Client interface {
	Submit(ctx context.Context, file io.Reader, filename string) (string, error)
	PollStatus(ctx context.Context, taskID string) (TaskStatus, error)
	FetchResult(ctx context.Context, taskID string) (map[string]any, error)
}

// Options configures the HTTP client.
type Options struct {
	BaseURL           string
	APIKey            string
	ParseModel        string
	ExtractModel      string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// HTTPClient implements Client against the extraction service REST API.
type HTTPClient struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewHTTPClient creates a client with sane defaults filled in.
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.ParseModel == "" {
		opts.ParseModel = "dpt-2-latest"
	}
	if opts.ExtractModel == "" {
		opts.ExtractModel = "extract-latest"
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// Submit uploads a document and returns the upstream task id.
func (c *HTTPClient) Submit(ctx context.Context, file io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return "", eris.Wrap(err, "ade: create multipart")
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", eris.Wrap(err, "ade: copy document")
	}
	if err := mw.WriteField("parse_model", c.opts.ParseModel); err != nil {
		return "", eris.Wrap(err, "ade: write field")
	}
	if err := mw.WriteField("extract_model", c.opts.ExtractModel); err != nil {
		return "", eris.Wrap(err, "ade: write field")
	}
	if err := mw.Close(); err != nil {
		return "", eris.Wrap(err, "ade: close multipart")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/extractions", &body)
	if err != nil {
		return "", eris.Wrap(err, "ade: build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	var resp submitResponse
	if err := c.doJSON(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", eris.New("ade: submit returned no task id")
	}
	return resp.TaskID, nil
}

// PollStatus reports the upstream task state.
func (c *HTTPClient) PollStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/extractions/%s", c.opts.BaseURL, taskID), nil)
	if err != nil {
		return TaskStatus{}, eris.Wrap(err, "ade: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	var status TaskStatus
	if err := c.doJSON(ctx, req, &status); err != nil {
		return TaskStatus{}, err
	}
	return status, nil
}

// FetchResult retrieves the raw extraction payload for a completed task.
func (c *HTTPClient) FetchResult(ctx context.Context, taskID string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/extractions/%s/result", c.opts.BaseURL, taskID), nil)
	if err != nil {
		return nil, eris.Wrap(err, "ade: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	var result map[string]any
	if err := c.doJSON(ctx, req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// doJSON runs the request with rate limiting and retry on 429/5xx, then
// decodes the body into out. Requests with a consumed body are not
// retried.
func (c *HTTPClient) doJSON(ctx context.Context, req *http.Request, out any) error {
	retriable := req.Body == nil

	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "ade: rate limiter wait")
		}

		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if !retriable {
				break
			}
			zap.L().Warn("extraction request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("ade: http %d from %s", resp.StatusCode, req.URL.String())
			if !retriable {
				break
			}
			zap.L().Warn("extraction service error, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			return eris.Errorf("ade: http %d from %s: %s", resp.StatusCode, req.URL.String(), string(b))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		_ = resp.Body.Close()
		return eris.Wrap(err, "ade: decode response")
	}
	return eris.Wrap(lastErr, "ade: request")
}

func (c *HTTPClient) backoff(ctx context.Context, attempt int) {
	base := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	jitter := time.Duration(rand.Int64N(int64(time.Second)))
	select {
	case <-ctx.Done():
	case <-time.After(base + jitter):
	}
}
