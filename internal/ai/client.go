package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"webforge_server/internal/ai/prompts"
	"webforge_server/internal/types"
)

// DefaultCandidates is the ordered model fallback chain. Each candidate
// carries its own token budget and prompt variant; small models get the
// compact prompt. The list is read-only at runtime.
var DefaultCandidates = []types.ModelCandidate{
	{ID: "gpt-4o", MaxTokens: 8192, PromptVariant: types.VariantFull},
	{ID: "gpt-4o-mini", MaxTokens: 8192, PromptVariant: types.VariantFull},
	{ID: "llama-3.1-8b-instant", MaxTokens: 4096, PromptVariant: types.VariantCompact},
}

// completionAPI is the slice of the OpenAI client the fallback chain needs.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// FallbackResult is a successful completion together with the model that
// produced it.
type FallbackResult struct {
	Response openai.ChatCompletionResponse
	ModelID  string
}

// FallbackClient talks to an OpenAI-compatible endpoint across an ordered
// candidate list: first success wins, rate-limited or failing candidates are
// skipped, and malformed tool output triggers a bounded whole-chain retry.
type FallbackClient struct {
	api        completionAPI
	candidates []types.ModelCandidate
	retryMax   int
	retryDelay time.Duration
}

// NewFallbackClient builds a client for the given endpoint. baseURL may be
// empty to use the default OpenAI endpoint.
func NewFallbackClient(apiKey, baseURL string, candidates []types.ModelCandidate, retryMax int, retryDelay time.Duration) *FallbackClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &FallbackClient{
		api:        openai.NewClientWithConfig(cfg),
		candidates: candidates,
		retryMax:   retryMax,
		retryDelay: retryDelay,
	}
}

// NewFallbackClientWithAPI wires an explicit completion API, used by tests.
func NewFallbackClientWithAPI(api completionAPI, candidates []types.ModelCandidate, retryMax int, retryDelay time.Duration) *FallbackClient {
	return &FallbackClient{
		api:        api,
		candidates: candidates,
		retryMax:   retryMax,
		retryDelay: retryDelay,
	}
}

// Call tries each candidate in order and returns the first success.
func (c *FallbackClient) Call(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool, isFollowUp bool) (*FallbackResult, error) {
	return c.call(ctx, messages, tools, isFollowUp, 0)
}

func (c *FallbackClient) call(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool, isFollowUp bool, retryDepth int) (*FallbackResult, error) {
	var lastErr error

	for _, candidate := range c.candidates {
		req := openai.ChatCompletionRequest{
			Model: candidate.ID,
			Messages: append([]openai.ChatCompletionMessage{{
				Role:    openai.ChatMessageRoleSystem,
				Content: prompts.Compose(candidate.PromptVariant, isFollowUp),
			}}, messages...),
			MaxTokens:   candidate.MaxTokens,
			Temperature: 0.3,
		}
		if len(tools) > 0 {
			req.Tools = tools
			req.ToolChoice = "auto"
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			logrus.WithField("model", candidate.ID).Debug("Model call succeeded")
			return &FallbackResult{Response: resp, ModelID: candidate.ID}, nil
		}

		switch {
		case isRateLimited(err):
			logrus.WithField("model", candidate.ID).Warnf("Rate limited, trying next candidate: %v", err)
			lastErr = err
		case isMalformedToolOutput(err):
			if retryDepth < c.retryMax {
				logrus.WithFields(logrus.Fields{
					"model": candidate.ID,
					"retry": retryDepth + 1,
				}).Warn("Malformed tool output, retrying full chain")
				select {
				case <-time.After(c.retryDelay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				return c.call(ctx, messages, tools, isFollowUp, retryDepth+1)
			}
			logrus.WithField("model", candidate.ID).Warnf("Malformed tool output, retries exhausted: %v", err)
			lastErr = err
		default:
			logrus.WithField("model", candidate.ID).Warnf("Model call failed, trying next candidate: %v", err)
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all models failed: %w", lastErr)
	}
	return nil, errors.New("all models failed")
}

// isRateLimited reports whether the error signals rate limiting.
func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit")
}

// isMalformedToolOutput reports whether the endpoint rejected the model's
// own tool-call output. Some providers surface this as a 400 with a
// tool_use_failed code; the model usually gets it right on a fresh attempt.
func isMalformedToolOutput(err error) bool {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "tool_use_failed") || strings.Contains(msg, "failed_generation") {
		return true
	}
	return strings.Contains(msg, "tool") && (strings.Contains(msg, "malformed") || strings.Contains(msg, "invalid arguments"))
}
