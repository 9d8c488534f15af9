package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"onecam/internal/domain"
)

func TestClientQueuePrompt(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/prompt" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Fatalf("unexpected content type: %s", got)
		}
		var payload queueRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if payload.ClientID != "123" {
			t.Fatalf("unexpected client id: %s", payload.ClientID)
		}
		if payload.Prompt["6"] == nil {
			t.Fatalf("job document missing from payload: %+v", payload.Prompt)
		}
		if payload.ExtraData.ExtraPNGInfo.Workflow["6"] == nil {
			t.Fatalf("workflow missing from extra_pnginfo")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"prompt_id": "job-1", "number": 3})
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL + "/", ClientID: "123"})
	handle, err := client.QueuePrompt(context.Background(), domain.JobDocument{"6": map[string]any{"inputs": map[string]any{"text": "x"}}})
	if err != nil {
		t.Fatalf("QueuePrompt error: %v", err)
	}
	if handle.PromptID != "job-1" {
		t.Fatalf("unexpected prompt id: %s", handle.PromptID)
	}
}

func TestClientQueuePromptErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "engine rejects graph", status: http.StatusBadRequest, body: `{"error":{"type":"prompt_outputs_failed_validation","message":"Prompt outputs failed validation","details":""}}`, wantMsg: "Prompt outputs failed validation"},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "malformed body", status: http.StatusOK, body: `{not json`},
		{name: "missing prompt id", status: http.StatusOK, body: `{"number":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			client := NewClient(Options{BaseURL: ts.URL})
			_, err := client.QueuePrompt(context.Background(), domain.JobDocument{})
			if !errors.Is(err, domain.ErrEngineUnavailable) {
				t.Fatalf("expected ErrEngineUnavailable, got %v", err)
			}
			if tc.wantMsg != "" && !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q should contain %q", err, tc.wantMsg)
			}
		})
	}
}

func TestClientQueuePromptUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := ts.URL
	ts.Close()

	client := NewClient(Options{BaseURL: addr, Timeout: time.Second})
	if _, err := client.QueuePrompt(context.Background(), domain.JobDocument{}); !IsEngineError(err) {
		t.Fatalf("expected engine error, got %v", err)
	}
}

func TestClientHistory(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/history" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("prompt_id"); got != "job 1" {
			t.Fatalf("unexpected prompt_id query: %q", got)
		}
		_, _ = w.Write([]byte(`{"job 1":{"outputs":{"9":{"images":[{"filename":"ComfyUI_00001_.png","subfolder":"","type":"output"}]}}}}`))
	}))
	defer ts.Close()

	client := NewClient(Options{BaseURL: ts.URL})
	record, err := client.History(context.Background(), domain.JobHandle{PromptID: "job 1"})
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	images := record["job 1"].Outputs["9"].Images
	if len(images) != 1 || images[0].Filename != "ComfyUI_00001_.png" {
		t.Fatalf("unexpected images: %+v", images)
	}
}

func TestClientHistoryNoResult(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusNotFound, body: `{}`},
		{name: "malformed json", status: http.StatusOK, body: `{"x":`},
		{name: "null body", status: http.StatusOK, body: `null`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			client := NewClient(Options{BaseURL: ts.URL})
			if _, err := client.History(context.Background(), domain.JobHandle{PromptID: "x"}); !errors.Is(err, domain.ErrNoResult) {
				t.Fatalf("expected ErrNoResult, got %v", err)
			}
		})
	}
}
