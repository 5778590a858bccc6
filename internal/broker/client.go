// Package broker starts and stops chat processes over the dashboard's HTTP API.
package broker

import (
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

	"github.com/google/uuid"
	"github.com/iksnae/questchat/internal"
)

// RequestIDHeader carries a per-request id for server-side log correlation
const RequestIDHeader = "X-Request-Id"

const maxErrorBody = 64 << 10

// Client implements internal.StartBroker and internal.StopBroker
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

var (
	_ internal.StartBroker = (*Client)(nil)
	_ internal.StopBroker  = (*Client)(nil)
)

type startBody struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// StartChat begins an exchange and returns its process handle
func (c *Client) StartChat(ctx context.Context, req internal.StartRequest) (internal.StartResult, error) {
	var result internal.StartResult

	path, err := startPath(req)
	if err != nil {
		return result, &internal.BrokerError{Op: "start", Target: req.Target.String(), Err: err}
	}
	body := startBody{Message: req.Message}
	if req.Target.QuestID != "" {
		body.SessionID = req.SessionID
	}

	if err := c.post(ctx, "start", req.Target, path, body, &result); err != nil {
		return internal.StartResult{}, err
	}
	if result.ChatProcessID == "" {
		return internal.StartResult{}, &internal.BrokerError{
			Op:     "start",
			Target: req.Target.String(),
			Err:    errors.New("response has no chatProcessId"),
		}
	}
	internal.LogDebug("Started chat process %s on %s", result.ChatProcessID, req.Target)
	return result, nil
}

// StopChat asks the server to terminate a running process
func (c *Client) StopChat(ctx context.Context, req internal.StopRequest) (internal.StopResult, error) {
	var result internal.StopResult
	if req.ChatProcessID == "" {
		return result, &internal.BrokerError{Op: "stop", Target: req.Target.String(), Err: errors.New("no chat process to stop")}
	}

	base, err := targetPath(req.Target)
	if err != nil {
		return result, &internal.BrokerError{Op: "stop", Target: req.Target.String(), Err: err}
	}
	path := base + "/chat/" + url.PathEscape(req.ChatProcessID) + "/stop"

	if err := c.post(ctx, "stop", req.Target, path, struct{}{}, &result); err != nil {
		return internal.StopResult{}, err
	}
	return result, nil
}

// startPath picks the endpoint for a start request. Guild targets carry a
// known session in the path; quest targets carry it in the body.
func startPath(req internal.StartRequest) (string, error) {
	base, err := targetPath(req.Target)
	if err != nil {
		return "", err
	}
	if req.Target.QuestID == "" && req.SessionID != "" {
		return base + "/chat/" + url.PathEscape(req.SessionID), nil
	}
	return base + "/chat", nil
}

func targetPath(t internal.Target) (string, error) {
	switch {
	case t.QuestID != "":
		return "/api/quests/" + url.PathEscape(t.QuestID), nil
	case t.GuildID != "":
		return "/api/guilds/" + url.PathEscape(t.GuildID), nil
	default:
		return "", internal.ErrNoTarget
	}
}

func (c *Client) post(ctx context.Context, op string, target internal.Target, path string, in, out interface{}) error {
	fail := func(status int, err error) error {
		return &internal.BrokerError{Op: op, Target: target.String(), StatusCode: status, Err: err}
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fail(0, fmt.Errorf("failed to encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fail(0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, uuid.NewString())

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			return fail(resp.StatusCode, errors.New(eb.Error))
		}
		return fail(resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fail(resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// Ping checks that the server answers HTTP. Any response below 500 counts
// as reachable.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/", nil)
	if err != nil {
		return &internal.BrokerError{Op: "ping", Err: err}
	}
	httpReq.Header.Set(RequestIDHeader, uuid.NewString())

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return &internal.BrokerError{Op: "ping", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode >= 500 {
		return &internal.BrokerError{Op: "ping", StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return nil
}
