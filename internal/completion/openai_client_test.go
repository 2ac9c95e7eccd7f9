package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/aira/internal/model"
)

func newOpenAIServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w, body)
	}))
}

func TestOpenAIClient_Complete_BuildsMessages(t *testing.T) {
	server := newOpenAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		if body["model"] != "gpt-4o-mini" {
			t.Errorf("model = %v", body["model"])
		}
		if body["max_tokens"] != float64(1024) {
			t.Errorf("max_tokens = %v", body["max_tokens"])
		}
		messages, _ := body["messages"].([]any)
		if len(messages) != 4 {
			t.Fatalf("messages = %d, want 4 (system, 2 history, user)", len(messages))
		}
		wantRoles := []string{"system", "user", "assistant", "user"}
		for i, m := range messages {
			if role := m.(map[string]any)["role"]; role != wantRoles[i] {
				t.Errorf("messages[%d].role = %v, want %s", i, role, wantRoles[i])
			}
		}
		if last := messages[3].(map[string]any)["content"]; last != "What about Roth conversions?" {
			t.Errorf("last content = %v", last)
		}

		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Roth conversions can help."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})
	defer server.Close()

	var buf bytes.Buffer
	c := NewOpenAIClient(server.Client(), newTestLogger(&buf), OpenAIOptions{
		APIKey:    "sk-test",
		BaseURL:   server.URL + "/v1",
		Model:     "gpt-4o-mini",
		MaxTokens: 1024,
	})

	got, err := c.Complete(context.Background(), Request{
		Message: "What about Roth conversions?",
		History: []model.HistoryEntry{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello! How can I help?"},
		},
		SystemPrompt: DefaultSystemPrompt,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "Roth conversions can help." {
		t.Errorf("reply = %q", got)
	}
}

func TestOpenAIClient_Complete_APIError(t *testing.T) {
	server := newOpenAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`))
	})
	defer server.Close()

	var buf bytes.Buffer
	c := NewOpenAIClient(server.Client(), newTestLogger(&buf), OpenAIOptions{
		APIKey:  "sk-test",
		BaseURL: server.URL + "/v1",
		Model:   "gpt-4o-mini",
	})

	_, err := c.Complete(context.Background(), Request{Message: "hi"})
	if code := apiErrorCode(t, err); code != model.ErrCodeProvider {
		t.Errorf("code = %q, want %q", code, model.ErrCodeProvider)
	}
}

func TestOpenAIClient_Complete_NoChoices(t *testing.T) {
	server := newOpenAIServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.Write([]byte(`{"id": "chatcmpl-2", "object": "chat.completion", "model": "gpt-4o-mini", "choices": []}`))
	})
	defer server.Close()

	var buf bytes.Buffer
	c := NewOpenAIClient(server.Client(), newTestLogger(&buf), OpenAIOptions{
		APIKey:  "sk-test",
		BaseURL: server.URL + "/v1",
		Model:   "gpt-4o-mini",
	})

	_, err := c.Complete(context.Background(), Request{Message: "hi"})
	if code := apiErrorCode(t, err); code != model.ErrCodeProviderResponseMalformed {
		t.Errorf("code = %q, want %q", code, model.ErrCodeProviderResponseMalformed)
	}
}
