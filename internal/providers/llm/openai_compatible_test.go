package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kestrelworks/engram/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatible_Chat(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `[{"relation":"duplicate"}]`}},
			},
		})
	}))
	defer srv.Close()

	p := NewCustomOpenAI(srv.URL, "secret", "test-model")
	msg, err := p.Chat(context.Background(), []core.Message{
		{Role: core.RoleSystem, Content: "classify"},
		{Role: core.RoleUser, Content: "NEW: x"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "test-model", gotBody["model"])
	assert.Equal(t, core.RoleAssistant, msg.Role)
	assert.Contains(t, msg.Content, "duplicate")
}

func TestOpenAICompatible_ChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewCustomOpenAI(srv.URL, "secret", "test-model")
	_, err := p.Chat(context.Background(), []core.Message{{Role: core.RoleUser, Content: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenAICompatible_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewCustomOpenAI(srv.URL, "secret", "test-model")
	_, err := p.Chat(context.Background(), []core.Message{{Role: core.RoleUser, Content: "x"}})
	require.Error(t, err)
}

func TestAnthropic_SystemMessageLifted(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "ok"}},
		})
	}))
	defer srv.Close()

	p := NewAnthropic("key", "test-model")
	p.baseURL = srv.URL

	msg, err := p.Chat(context.Background(), []core.Message{
		{Role: core.RoleSystem, Content: "you are a classifier"},
		{Role: core.RoleUser, Content: "classify this"},
	})
	require.NoError(t, err)

	assert.Equal(t, "you are a classifier", gotBody["system"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
	assert.Equal(t, "ok", msg.Content)
}
