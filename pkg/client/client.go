package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lkirch/sciencesage/rag/types"
)

// ErrUnavailable is returned when the server could not reach its backends.
var ErrUnavailable = errors.New("answer unavailable")

// Client is a client for the ScienceSage API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// AnswerRequest is the body of POST /api/answer and /api/retrieve.
type AnswerRequest struct {
	Query string `json:"query"`
	Topic string `json:"topic,omitempty"`
	Level string `json:"level,omitempty"`
}

// RephraseRequest is the body and the response of POST /api/rephrase.
type RephraseRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("%w: %s", ErrUnavailable, e.Error)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RetrieveAnswer asks a question and returns the grounded answer.
func (c *Client) RetrieveAnswer(ctx context.Context, query, topic string, level types.Level) (*types.Response, error) {
	resp := &types.Response{}
	err := c.do(ctx, http.MethodPost, "/api/answer", AnswerRequest{Query: query, Topic: topic, Level: string(level)}, resp)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Retrieve returns the context the server would answer query from.
func (c *Client) Retrieve(ctx context.Context, query, topic string) (*types.Response, error) {
	resp := &types.Response{}
	err := c.do(ctx, http.MethodPost, "/api/retrieve", AnswerRequest{Query: query, Topic: topic}, resp)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Rephrase returns a clarified version of query.
func (c *Client) Rephrase(ctx context.Context, query string) (string, error) {
	var out RephraseRequest
	if err := c.do(ctx, http.MethodPost, "/api/rephrase", RephraseRequest{Query: query}, &out); err != nil {
		return "", err
	}
	return out.Query, nil
}

// Topics lists the topics the server accepts.
func (c *Client) Topics(ctx context.Context) ([]string, error) {
	topics := []string{}
	if err := c.do(ctx, http.MethodGet, "/api/topics", nil, &topics); err != nil {
		return nil, err
	}
	return topics, nil
}

// Level describes an explanation level.
type Level struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Levels lists the explanation levels.
func (c *Client) Levels(ctx context.Context) ([]Level, error) {
	levels := []Level{}
	if err := c.do(ctx, http.MethodGet, "/api/levels", nil, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// Healthy reports whether the server answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil) == nil
}
