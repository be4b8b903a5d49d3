package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aken1023/llamaindex-faiss-system1/internal/config"
	"github.com/aken1023/llamaindex-faiss-system1/internal/pkg/logger"
)

// ResolvedPreference is a tenant's chosen backend with the credential they
// stored for it. An empty APIKey falls through to the provider's env var.
type ResolvedPreference struct {
	Descriptor Descriptor
	APIKey     string
}

// PreferenceResolver looks up a tenant's default model preference. A nil
// result (no error) means the tenant has no usable default and the
// system-wide descriptor applies.
type PreferenceResolver interface {
	DefaultModel(userID uint) (*ResolvedPreference, error)
}

// Router resolves which backend answers a tenant's grounded question and
// dispatches to it. Failures come back as human-readable answer strings, not
// errors: the caller always has something to show.
type Router struct {
	resolver   PreferenceResolver
	cfg        config.GenerationConfig
	httpClient *http.Client
}

func NewRouter(resolver PreferenceResolver, cfg config.GenerationConfig) *Router {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Router{
		resolver:   resolver,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Answer builds the grounding prompt from the retrieved context and asks the
// tenant's preferred backend. Only the top ContextDocs documents enter the
// prompt regardless of how many the caller retrieved, bounding prompt size.
func (r *Router) Answer(ctx context.Context, userID uint, question string, contextDocs []string) string {
	pref := r.resolvePreference(userID)
	variant := providerFor(pref.Descriptor.Provider)

	apiKey := pref.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(variant.credentialEnv())
	}
	if apiKey == "" {
		return fmt.Sprintf("Error: %s API key not set. Add a credential to your model preference or configure %s.",
			variant.name(), variant.credentialEnv())
	}

	limit := r.cfg.ContextDocs
	if limit <= 0 {
		limit = 2
	}
	if len(contextDocs) > limit {
		contextDocs = contextDocs[:limit]
	}

	systemPrompt := fmt.Sprintf(
		"You are the private knowledge-base assistant for user %d. Answer only from the documents this user uploaded.",
		userID)
	prompt := buildGroundingPrompt(question, contextDocs)

	answer, err := variant.generate(ctx, r.httpClient, systemPrompt, prompt, pref.Descriptor, apiKey)
	if err != nil {
		logger.Errorf("generation via %s failed: %v", variant.name(), err)
		var se *statusError
		if errors.As(err, &se) {
			return fmt.Sprintf("Model API call failed with status %d: %s", se.status, se.body)
		}
		return fmt.Sprintf("Unable to generate an answer from your documents. Error: %v", err)
	}
	return strings.TrimSpace(answer)
}

// resolvePreference returns the tenant's default preference, or the
// system-wide descriptor when none exists or the lookup fails.
func (r *Router) resolvePreference(userID uint) ResolvedPreference {
	if r.resolver != nil {
		pref, err := r.resolver.DefaultModel(userID)
		if err != nil {
			logger.Warnf("resolve model preference for user %d failed: %v", userID, err)
		} else if pref != nil {
			return *pref
		}
	}
	return ResolvedPreference{
		Descriptor: Descriptor{
			Provider:   r.cfg.DefaultProvider,
			ModelID:    r.cfg.DefaultModel,
			APIBaseURL: r.cfg.DefaultBaseURL,
		},
	}
}

func buildGroundingPrompt(question string, contextDocs []string) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using the following content from your private documents:\n\n")
	for i, doc := range contextDocs {
		sb.WriteString(fmt.Sprintf("Document %d: %s\n\n", i+1, doc))
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nGive an accurate, detailed answer based only on the documents above:")
	return sb.String()
}
