package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"exam-engine/internal/app"
	"exam-engine/internal/domain"
)

// Client talks to the external compiler service over HTTP. Every call gets
// its own deadline; a blown deadline surfaces as domain.ErrExecutionTimeout
// so the adjudicator can score it as a failed run instead of an outage.
type Client struct {
	baseURL     string
	http        *http.Client
	codeTimeout time.Duration
	sqlTimeout  time.Duration
}

type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeouts(code, sql time.Duration) Option {
	return func(c *Client) {
		if code > 0 {
			c.codeTimeout = code
		}
		if sql > 0 {
			c.sqlTimeout = sql
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		http:        &http.Client{},
		codeTimeout: 15 * time.Second,
		sqlTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type executeRequest struct {
	Language string `json:"language"`
	Script   string `json:"script"`
	Stdin    string `json:"stdin,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type executeResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Error  string `json:"error,omitempty"`
}

func (c *Client) Execute(ctx context.Context, language, source, stdin string) (app.ExecOutput, error) {
	req := executeRequest{
		Language: language,
		Script:   source,
		Stdin:    stdin,
		Filename: app.MainFileName(language),
	}
	return c.post(ctx, "/execute", req, c.codeTimeout)
}

func (c *Client) ExecuteSQL(ctx context.Context, sql string) (app.ExecOutput, error) {
	req := executeRequest{Language: "sql", Script: sql}
	return c.post(ctx, "/execute/sql", req, c.sqlTimeout)
}

func (c *Client) post(ctx context.Context, path string, payload executeRequest, timeout time.Duration) (app.ExecOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return app.ExecOutput{}, fmt.Errorf("marshal execute request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return app.ExecOutput{}, fmt.Errorf("build execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return app.ExecOutput{}, domain.ErrExecutionTimeout.WithMessage("execution exceeded %s", timeout)
		}
		return app.ExecOutput{}, fmt.Errorf("call compiler service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return app.ExecOutput{}, fmt.Errorf("read compiler response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return app.ExecOutput{}, fmt.Errorf("compiler service returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out executeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return app.ExecOutput{}, fmt.Errorf("decode compiler response: %w", err)
	}
	if out.Error != "" && out.Stderr == "" {
		out.Stderr = out.Error
	}
	return app.ExecOutput{Stdout: out.Stdout, Stderr: out.Stderr}, nil
}
