// Package aisvc completes debrief prompts with Anthropic models.
package aisvc

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
	"github.com/trezcool/kiongozi/core/debrief"
)

var ErrNotConfigured = errors.New("AI API key not configured")

type sendFunc func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)

// AnthropicGenerator implements debrief.Generator over the Messages API.
type AnthropicGenerator struct {
	model          string
	maxTokens      int
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	send           sendFunc
	logger         core.Logger
}

var _ debrief.Generator = (*AnthropicGenerator)(nil)

func NewAnthropicGenerator(conf *core.Config, logger core.Logger) *AnthropicGenerator {
	g := &AnthropicGenerator{
		model:          conf.AI.Model,
		maxTokens:      conf.AI.MaxTokens,
		timeout:        conf.AI.Timeout,
		maxRetries:     conf.AI.MaxRetries,
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
		logger:         logger,
	}
	if conf.AI.APIKey == "" {
		g.send = func(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error) {
			return nil, ErrNotConfigured
		}
		return g
	}
	// retries are handled here, with our own backoff
	client := anthropic.NewClient(option.WithAPIKey(conf.AI.APIKey), option.WithMaxRetries(0))
	g.send = func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
		return client.Messages.New(ctx, params)
	}
	return g
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt debrief.Prompt) (debrief.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}

	var resp *anthropic.Message
	err := g.retryWithBackoff(ctx, func(attemptCtx context.Context) error {
		var err error
		resp, err = g.send(attemptCtx, params)
		return err
	})
	if err != nil {
		return debrief.Completion{}, errors.Wrap(err, "anthropic messages")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	model := string(resp.Model)
	if model == "" {
		model = g.model
	}
	return debrief.Completion{Text: sb.String(), Model: model}, nil
}

// retryWithBackoff retries fn on transient failures, doubling the wait each time.
func (g *AnthropicGenerator) retryWithBackoff(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	backoff := g.initialBackoff

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			if attempt > 0 {
				g.logger.Info(fmt.Sprintf("aisvc: succeeded after %d retries", attempt))
			}
			return nil
		}

		lastErr = err
		if !isRetriable(err) || attempt == g.maxRetries {
			break
		}
		g.logger.Warn(fmt.Sprintf("aisvc: attempt %d failed, retrying in %v", attempt+1, backoff), err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > g.maxBackoff {
			backoff = g.maxBackoff
		}
	}
	return lastErr
}

func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return true
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, transient := range []string{"connection refused", "connection reset", "timeout", "temporary failure", "overloaded"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
