package engine

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

	"onecam/internal/domain"
)

// Options controls how the engine client is configured.
type Options struct {
	BaseURL    string
	ClientID   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the engine's job-queue and history endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "http://127.0.0.1:8188"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		clientID:   strings.TrimSpace(opts.ClientID),
	}
}

// BaseURL returns the engine address the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

type queueRequest struct {
	Prompt    domain.JobDocument `json:"prompt"`
	ClientID  string             `json:"client_id"`
	ExtraData struct {
		ExtraPNGInfo struct {
			Workflow domain.JobDocument `json:"workflow"`
		} `json:"extra_pnginfo"`
	} `json:"extra_data"`
}

type queueResponse struct {
	PromptID   string          `json:"prompt_id"`
	Number     int             `json:"number"`
	NodeErrors json.RawMessage `json:"node_errors,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}

// QueuePrompt posts a job document to /prompt and returns its handle. Every
// failure wraps domain.ErrEngineUnavailable.
func (c *Client) QueuePrompt(ctx context.Context, doc domain.JobDocument) (domain.JobHandle, error) {
	if c == nil {
		return domain.JobHandle{}, fmt.Errorf("%w: client not configured", domain.ErrEngineUnavailable)
	}
	var payload queueRequest
	payload.Prompt = doc
	payload.ClientID = c.clientID
	payload.ExtraData.ExtraPNGInfo.Workflow = doc
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("%w: encode job: %v", domain.ErrEngineUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("%w: queue prompt: %v", domain.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("%w: read queue response: %v", domain.ErrEngineUnavailable, err)
	}
	var out queueResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := engineErrorMessage(out.Error); decodeErr == nil && msg != "" {
			return domain.JobHandle{}, fmt.Errorf("%w: http %d: %s", domain.ErrEngineUnavailable, resp.StatusCode, msg)
		}
		return domain.JobHandle{}, fmt.Errorf("%w: http %d", domain.ErrEngineUnavailable, resp.StatusCode)
	}
	if decodeErr != nil {
		return domain.JobHandle{}, fmt.Errorf("%w: decode queue response: %v", domain.ErrEngineUnavailable, decodeErr)
	}
	if strings.TrimSpace(out.PromptID) == "" {
		return domain.JobHandle{}, fmt.Errorf("%w: response missing prompt_id", domain.ErrEngineUnavailable)
	}
	return domain.JobHandle{PromptID: out.PromptID}, nil
}

// History fetches the execution record of a job. A transport failure wraps
// domain.ErrEngineUnavailable; a non-2xx status or an absent or malformed body
// wraps domain.ErrNoResult.
func (c *Client) History(ctx context.Context, handle domain.JobHandle) (domain.HistoryRecord, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: client not configured", domain.ErrEngineUnavailable)
	}
	endpoint := c.baseURL + "/history?" + url.Values{"prompt_id": {handle.PromptID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch history: %v", domain.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: history http %d", domain.ErrNoResult, resp.StatusCode)
	}
	var record domain.HistoryRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("%w: decode history: %v", domain.ErrNoResult, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: empty history body", domain.ErrNoResult)
	}
	return record, nil
}

// engineErrorMessage extracts a readable message from the engine's "error"
// field, which is either a string or an object with a "message" key.
func engineErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	msg := strings.TrimSpace(obj.Message)
	if d := strings.TrimSpace(obj.Details); d != "" {
		msg += " (" + d + ")"
	}
	return msg
}

// IsEngineError reports whether err came from talking to the engine rather
// than from the job outcome.
func IsEngineError(err error) bool {
	return errors.Is(err, domain.ErrEngineUnavailable)
}
