// Package ai routes grounded questions to language-model backends.
//
// The provider set is closed: deepseek, openai, anthropic, and a generic
// OpenAI-compatible fallback for any other provider string. Each variant
// knows its endpoint path, credential env var, and response shape.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Descriptor identifies a language-model backend.
type Descriptor struct {
	Provider   string
	ModelID    string
	APIBaseURL string
}

// provider is the capability one backend variant implements: turn a prompt
// into generated text using the given descriptor and credential.
type provider interface {
	generate(ctx context.Context, client *http.Client, systemPrompt, prompt string, d Descriptor, apiKey string) (string, error)
	name() string
	credentialEnv() string
}

func providerFor(providerName string) provider {
	switch strings.ToLower(providerName) {
	case "deepseek":
		return deepseekProvider{}
	case "openai":
		return openaiProvider{}
	case "anthropic":
		return anthropicProvider{}
	default:
		return genericProvider{provider: providerName}
	}
}

type deepseekProvider struct{}

func (deepseekProvider) name() string          { return "deepseek" }
func (deepseekProvider) credentialEnv() string { return "DEEPSEEK_API_KEY" }

func (deepseekProvider) generate(ctx context.Context, client *http.Client, systemPrompt, prompt string, d Descriptor, apiKey string) (string, error) {
	url := strings.TrimRight(d.APIBaseURL, "/") + "/v1/chat/completions"
	return chatCompletions(ctx, client, url, d.ModelID, systemPrompt, prompt, apiKey)
}

type openaiProvider struct{}

func (openaiProvider) name() string          { return "openai" }
func (openaiProvider) credentialEnv() string { return "OPENAI_API_KEY" }

func (openaiProvider) generate(ctx context.Context, client *http.Client, systemPrompt, prompt string, d Descriptor, apiKey string) (string, error) {
	url := strings.TrimRight(d.APIBaseURL, "/") + "/chat/completions"
	return chatCompletions(ctx, client, url, d.ModelID, systemPrompt, prompt, apiKey)
}

type anthropicProvider struct{}

func (anthropicProvider) name() string          { return "anthropic" }
func (anthropicProvider) credentialEnv() string { return "ANTHROPIC_API_KEY" }

func (anthropicProvider) generate(ctx context.Context, client *http.Client, systemPrompt, prompt string, d Descriptor, apiKey string) (string, error) {
	reqBody := map[string]interface{}{
		"model":      d.ModelID,
		"max_tokens": 1000,
		"messages": []map[string]string{
			{"role": "user", "content": systemPrompt + "\n\n" + prompt},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request failed: %w", err)
	}

	url := strings.TrimRight(d.APIBaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build anthropic request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	raw, status, err := doRequest(client, req)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", &statusError{status: status, body: string(raw)}
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse anthropic json failed: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("empty anthropic content")
	}
	return parsed.Content[0].Text, nil
}

// genericProvider handles any other provider string over the
// OpenAI-compatible chat-completions shape.
type genericProvider struct {
	provider string
}

func (p genericProvider) name() string { return p.provider }

func (p genericProvider) credentialEnv() string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, p.provider)
	return strings.ToUpper(cleaned) + "_API_KEY"
}

func (p genericProvider) generate(ctx context.Context, client *http.Client, systemPrompt, prompt string, d Descriptor, apiKey string) (string, error) {
	url := strings.TrimRight(d.APIBaseURL, "/") + "/chat/completions"
	return chatCompletions(ctx, client, url, d.ModelID, systemPrompt, prompt, apiKey)
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func chatCompletions(ctx context.Context, client *http.Client, url, modelID, systemPrompt, prompt, apiKey string) (string, error) {
	reqBody := map[string]interface{}{
		"model": modelID,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.7,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build chat request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, status, err := doRequest(client, req)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", &statusError{status: status, body: string(raw)}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse chat json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func doRequest(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read model response failed: %w", err)
	}
	return raw, resp.StatusCode, nil
}
