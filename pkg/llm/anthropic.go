package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeready-toolchain/aigateway/pkg/config"
	"github.com/codeready-toolchain/aigateway/pkg/prompt"
)

const streamChunkBuffer = 32

// AnthropicClient talks to the Anthropic Messages API. The data block is
// sent first in the system array and marked cacheable, so repeated
// questions over the same tool data reuse the provider's computed prompt
// state; the per-request instructions follow uncached.
type AnthropicClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	redactor    InputRedactor
	logger      *slog.Logger
}

func NewAnthropicClient(cfg *config.LLMConfig, redactor InputRedactor, logger *slog.Logger) *AnthropicClient {
	return &AnthropicClient{
		client:      sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		redactor:    redactor,
		logger:      logger.With("component", "llm", "provider", "anthropic"),
	}
}

// Query sends the request and returns the full reply text with the
// provider's usage counters.
func (c *AnthropicClient) Query(ctx context.Context, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.client.Messages.New(callCtx, c.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	usage := Usage{
		InputTokens:         msg.Usage.InputTokens,
		OutputTokens:        msg.Usage.OutputTokens,
		CacheReadTokens:     msg.Usage.CacheReadInputTokens,
		CacheCreationTokens: msg.Usage.CacheCreationInputTokens,
	}
	c.logUsage(usage)

	return &Response{Text: text.String(), Usage: usage}, nil
}

// Stream sends the request and forwards text deltas as they arrive. A
// terminal pagination chunk follows the text when any tool server still
// has pages; a provider failure mid-stream surfaces as an error chunk.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	llmCtx, cancel := context.WithTimeout(ctx, c.timeout)

	stream := c.client.Messages.NewStreaming(llmCtx, c.buildParams(req))
	if err := stream.Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("llm stream failed to open: %w", err)
	}

	ch := make(chan Chunk, streamChunkBuffer)
	go func() {
		defer cancel()
		defer close(ch)
		defer func() { _ = stream.Close() }()

		emit := func(chunk Chunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-llmCtx.Done():
				return false
			}
		}

		var usage Usage
		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case sdk.MessageStartEvent:
				usage.InputTokens = ev.Message.Usage.InputTokens
				usage.CacheReadTokens = ev.Message.Usage.CacheReadInputTokens
				usage.CacheCreationTokens = ev.Message.Usage.CacheCreationInputTokens
			case sdk.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
					if !emit(Chunk{Kind: ChunkText, Text: delta.Text}) {
						return
					}
				}
			case sdk.MessageDeltaEvent:
				usage.OutputTokens = ev.Usage.OutputTokens
			}
		}

		if err := stream.Err(); err != nil {
			if llmCtx.Err() == nil {
				c.logger.Error("LLM stream failed", "error", err)
				emit(Chunk{Kind: ChunkError, Err: "LLM provider stream failed"})
			}
			return
		}

		c.logUsage(usage)
		if pg := PaginationFromResults(req.Results); pg != nil {
			emit(Chunk{Kind: ChunkPagination, Pagination: pg})
		}
	}()

	return ch, nil
}

// buildParams assembles the prompt and scrubs PII from every part that
// crosses the provider boundary.
func (c *AnthropicClient) buildParams(req Request) sdk.MessageNewParams {
	p := prompt.Build(prompt.Input{
		Caller:     req.Caller,
		Query:      req.Query,
		Delimiters: req.Delimiters,
		Results:    req.Results,
	})

	data, dataSummary := c.redactor.RedactInput(p.DataBlock)
	instructions, _ := c.redactor.RedactInput(p.Instructions)
	user, querySummary := c.redactor.RedactInput(p.UserMessage)
	for _, s := range append(dataSummary, querySummary...) {
		c.logger.Debug("Redacted PII before provider call", "kind", s.Kind, "count", s.Count)
	}

	return sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: data, CacheControl: sdk.NewCacheControlEphemeralParam()},
			{Text: instructions},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(user)),
		},
		Temperature: sdk.Float(c.temperature),
	}
}

func (c *AnthropicClient) logUsage(usage Usage) {
	c.logger.Info("LLM call complete",
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"cache_read_tokens", usage.CacheReadTokens,
		"cache_creation_tokens", usage.CacheCreationTokens)
}
