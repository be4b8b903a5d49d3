package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aken1023/llamaindex-faiss-system1/internal/config"
)

type stubResolver struct {
	pref *ResolvedPreference
	err  error
}

func (s *stubResolver) DefaultModel(uint) (*ResolvedPreference, error) {
	return s.pref, s.err
}

func chatReply(text string) string {
	return `{"choices":[{"message":{"content":"` + text + `"}}]}`
}

func TestAnswerDeepseekEndpoint(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, chatReply("grounded answer"))
	}))
	defer server.Close()

	router := NewRouter(&stubResolver{pref: &ResolvedPreference{
		Descriptor: Descriptor{Provider: "deepseek", ModelID: "deepseek-chat", APIBaseURL: server.URL},
		APIKey:     "secret-key",
	}}, config.GenerationConfig{ContextDocs: 2})

	answer := router.Answer(context.Background(), 1, "what is alpha?", []string{"alpha is first"})
	assert.Equal(t, "grounded answer", answer)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}

func TestAnswerAnthropicEndpoint(t *testing.T) {
	var gotPath, gotVersion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.Header.Get("anthropic-version")
		io.WriteString(w, `{"content":[{"text":"claude answer"}]}`)
	}))
	defer server.Close()

	router := NewRouter(&stubResolver{pref: &ResolvedPreference{
		Descriptor: Descriptor{Provider: "anthropic", ModelID: "claude-3-sonnet-20240229", APIBaseURL: server.URL},
		APIKey:     "secret-key",
	}}, config.GenerationConfig{})

	answer := router.Answer(context.Background(), 1, "question", []string{"doc"})
	assert.Equal(t, "claude answer", answer)
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "2023-06-01", gotVersion)
}

func TestAnswerGenericProviderUsesChatCompletionsPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, chatReply("generic answer"))
	}))
	defer server.Close()

	router := NewRouter(&stubResolver{pref: &ResolvedPreference{
		Descriptor: Descriptor{Provider: "ollama", ModelID: "llama3", APIBaseURL: server.URL},
		APIKey:     "secret-key",
	}}, config.GenerationConfig{})

	answer := router.Answer(context.Background(), 1, "question", []string{"doc"})
	assert.Equal(t, "generic answer", answer)
	assert.Equal(t, "/chat/completions", gotPath)
}

func TestAnswerMissingAPIKey(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")

	router := NewRouter(&stubResolver{pref: &ResolvedPreference{
		Descriptor: Descriptor{Provider: "deepseek", ModelID: "deepseek-chat", APIBaseURL: "http://unused"},
	}}, config.GenerationConfig{})

	answer := router.Answer(context.Background(), 1, "question", []string{"doc"})
	assert.Contains(t, answer, "API key not set")
	assert.Contains(t, answer, "DEEPSEEK_API_KEY")
}

func TestAnswerNon2xxBecomesAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, "rate limited")
	}))
	defer server.Close()

	router := NewRouter(&stubResolver{pref: &ResolvedPreference{
		Descriptor: Descriptor{Provider: "openai", ModelID: "gpt-4", APIBaseURL: server.URL},
		APIKey:     "secret-key",
	}}, config.GenerationConfig{})

	answer := router.Answer(context.Background(), 1, "question", []string{"doc"})
	assert.Contains(t, answer, "Model API call failed with status 429")
	assert.Contains(t, answer, "rate limited")
}

func TestAnswerTransportErrorBecomesAnswer(t *testing.T) {
	router := NewRouter(&stubResolver{pref: &ResolvedPreference{
		Descriptor: Descriptor{Provider: "openai", ModelID: "gpt-4", APIBaseURL: "http://127.0.0.1:1"},
		APIKey:     "secret-key",
	}}, config.GenerationConfig{})

	answer := router.Answer(context.Background(), 1, "question", []string{"doc"})
	assert.Contains(t, answer, "Unable to generate an answer from your documents")
}

func TestAnswerContextDocsCap(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for _, msg := range req.Messages {
			if msg.Role == "user" {
				gotPrompt = msg.Content
			}
		}
		io.WriteString(w, chatReply("ok"))
	}))
	defer server.Close()

	router := NewRouter(&stubResolver{pref: &ResolvedPreference{
		Descriptor: Descriptor{Provider: "openai", ModelID: "gpt-4", APIBaseURL: server.URL},
		APIKey:     "secret-key",
	}}, config.GenerationConfig{ContextDocs: 2})

	router.Answer(context.Background(), 1, "question", []string{"first doc", "second doc", "third doc"})
	assert.Contains(t, gotPrompt, "Document 1: first doc")
	assert.Contains(t, gotPrompt, "Document 2: second doc")
	assert.NotContains(t, gotPrompt, "third doc")
}

func TestAnswerFallsBackToConfiguredDefault(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		io.WriteString(w, chatReply("default answer"))
	}))
	defer server.Close()

	// No stored preference, resolver errors out: the system-wide default applies.
	router := NewRouter(&stubResolver{err: assert.AnError}, config.GenerationConfig{
		DefaultProvider: "deepseek",
		DefaultModel:    "deepseek-chat",
		DefaultBaseURL:  server.URL,
	})
	t.Setenv("DEEPSEEK_API_KEY", "env-key")

	answer := router.Answer(context.Background(), 1, "question", []string{"doc"})
	assert.Equal(t, "default answer", answer)
	assert.Equal(t, "deepseek-chat", gotBody["model"])
}
