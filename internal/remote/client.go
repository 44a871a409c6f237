// Package remote talks to the remote message store over plain
// request/response HTTP: history, text send, file send and mark-read.
package remote

import (
	"NiralaChat/internal/identity"
	"NiralaChat/internal/model"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout   = 15 * time.Second
	maxErrorBody     = 4096
	maxResponseBody  = 8 << 20
	correlationIDKey = "X-Correlation-Id"
)

// HTTPStatusError captures non-2xx responses from the message store.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("remote: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// FileUpload is a file picked or dropped by the user. Size may be zero when
// unknown, in which case progress jumps straight to 100 on completion.
type FileUpload struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

// ProgressFunc receives upload progress as a percentage in [0,100].
type ProgressFunc func(percent int)

type historyResponse struct {
	Messages []model.Message `json:"messages"`
}

type messageResponse struct {
	Message model.Message `json:"message"`
}

type sendTextRequest struct {
	Content string `json:"content"`
}

// Client is the message store client used by the chat orchestrator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     identity.TokenSource
	logger     *zap.Logger
	newID      func() string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTokenSource(src identity.TokenSource) Option {
	return func(c *Client) {
		c.tokens = src
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCorrelationIDs sets the generator for the X-Correlation-Id header.
func WithCorrelationIDs(newID func() string) Option {
	return func(c *Client) {
		c.newID = newID
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote: base url must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) conversationURL(conversationID, suffix string) string {
	return c.baseURL + "/api/conversations/" + url.PathEscape(conversationID) + suffix
}

// FetchHistory returns the conversation's messages in display order.
func (c *Client) FetchHistory(ctx context.Context, conversationID string) ([]model.Message, error) {
	u := c.conversationURL(conversationID, "/messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: create history request: %w", err)
	}

	raw, err := c.do(ctx, req, u)
	if err != nil {
		return nil, fmt.Errorf("remote: fetch history: %w", err)
	}

	var payload historyResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("remote: decode history: %w", err)
	}
	if payload.Messages == nil {
		payload.Messages = []model.Message{}
	}
	return payload.Messages, nil
}

// SendText posts a text message and returns the stored, server-assigned message.
func (c *Client) SendText(ctx context.Context, conversationID, text string) (model.Message, error) {
	body, err := json.Marshal(sendTextRequest{Content: text})
	if err != nil {
		return model.Message{}, fmt.Errorf("remote: marshal send request: %w", err)
	}

	u := c.conversationURL(conversationID, "/messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return model.Message{}, fmt.Errorf("remote: create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(ctx, req, u)
	if err != nil {
		return model.Message{}, fmt.Errorf("remote: send message: %w", err)
	}
	return decodeMessage(raw)
}

// MarkRead acknowledges every message of the conversation for the caller.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	u := c.conversationURL(conversationID, "/read")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("remote: create read request: %w", err)
	}
	if _, err := c.do(ctx, req, u); err != nil {
		return fmt.Errorf("remote: mark read: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, req *http.Request, u string) ([]byte, error) {
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}
	if c.newID != nil {
		req.Header.Set(correlationIDKey, c.newID())
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		c.logger.Debug("message store returned error status",
			zap.String("url", u),
			zap.Int("status", res.StatusCode),
		)
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolve identity token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func decodeMessage(raw []byte) (model.Message, error) {
	var payload messageResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return model.Message{}, fmt.Errorf("remote: decode message: %w", err)
	}
	if payload.Message.ID == "" {
		return model.Message{}, errors.New("remote: response message has no id")
	}
	return payload.Message, nil
}
