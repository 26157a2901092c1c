package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"spmagent/internal/config"
	"spmagent/pkg/circuitbreaker"
	"spmagent/pkg/logger"
	"spmagent/pkg/metrics"
)

const systemPrompt = "You plan software projects. You answer with a single JSON document and nothing else."

// ErrTruncated means the model hit its token limit before finishing the JSON document.
var ErrTruncated = errors.New("generator output truncated at max_tokens")

// AnthropicGenerator streams roadmap content from the Anthropic Messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	breaker   *circuitbreaker.CircuitBreaker
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

func NewAnthropicGenerator(cfg config.GeneratorConfig, logger *zap.Logger, opts ...option.RequestOption) *AnthropicGenerator {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &AnthropicGenerator{
		client:    anthropic.NewClient(clientOpts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		breaker:   circuitbreaker.NewCircuitBreaker(cfg.Breaker),
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:    logger,
	}
}

// Generate waits for a concurrency slot, then streams one completion through the circuit breaker.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request, onChunk func(string)) (*Content, error) {
	log := logger.WithTrace(ctx, g.logger)
	start := time.Now()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		metrics.RecordGeneration("rejected", time.Since(start))
		return nil, fmt.Errorf("waiting for generator slot: %w", err)
	}
	defer g.sem.Release(1)

	var text string
	err := g.breaker.Execute(func() error {
		var err error
		text, err = g.stream(ctx, BuildPrompt(req), onChunk)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		metrics.RecordGeneration("rejected", time.Since(start))
		log.Warn("Generator circuit open, rejecting request")
		return nil, err
	}
	if err != nil {
		metrics.RecordGeneration("error", time.Since(start))
		log.Error("Generator call failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return nil, err
	}

	content, err := ParseContent(text)
	if err == nil {
		err = content.Validate()
	}
	if err != nil {
		metrics.RecordGeneration("error", time.Since(start))
		log.Error("Generator returned unusable content",
			zap.Error(err),
			zap.Int("output_bytes", len(text)),
		)
		return nil, err
	}

	metrics.RecordGeneration("success", time.Since(start))
	log.Info("Roadmap content generated",
		zap.Int("modules", len(content.Modules)),
		zap.Duration("took", time.Since(start)),
	)
	return content, nil
}

func (g *AnthropicGenerator) stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	stream := g.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	defer stream.Close()

	var (
		message anthropic.Message
		text    strings.Builder
	)
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("accumulating stream: %w", err)
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				text.WriteString(delta.Text)
				if onChunk != nil {
					onChunk(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("anthropic stream: %w", err)
	}
	if message.StopReason == anthropic.StopReasonMaxTokens {
		return "", ErrTruncated
	}
	return text.String(), nil
}
