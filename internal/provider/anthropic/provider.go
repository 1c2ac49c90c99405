// Package anthropic implements the generation provider for Anthropic
// (Claude) models.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"inkwell/internal/domain/services"
	"inkwell/internal/schema"
)

// Provider streams beat prose from the Anthropic API.
type Provider struct {
	client *anthropic.Client
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: &client}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// Stream starts a streaming generation for one beat.
func (p *Provider) Stream(ctx context.Context, req *services.GenerateRequest) (<-chan services.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	userPrompt := buildUserPrompt(req)
	maxTokens := int64(req.WordCount * 4)
	if maxTokens < 1024 {
		maxTokens = 1024
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: buildSystemPrompt(req)},
		},
	}

	events := make(chan services.StreamEvent, 10)
	go func() {
		defer close(events)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)
		var accumulated strings.Builder

		for stream.Next() {
			event := stream.Current()
			switch e := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if e.Delta.Type == "text_delta" && e.Delta.Text != "" {
					accumulated.WriteString(e.Delta.Text)
					select {
					case <-ctx.Done():
						return
					case events <- services.StreamEvent{Type: services.EventChunk, Text: e.Delta.Text}:
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			events <- services.StreamEvent{
				Type: services.EventError,
				Err:  fmt.Errorf("anthropic streaming error: %w", err),
			}
			return
		}

		events <- services.StreamEvent{Type: services.EventComplete, Text: accumulated.String()}
	}()

	return events, nil
}

func buildSystemPrompt(req *services.GenerateRequest) string {
	var b strings.Builder
	b.WriteString("You are a fiction co-writer. Continue the story in the author's voice. ")
	fmt.Fprintf(&b, "Write roughly %d words of prose. ", req.WordCount)
	b.WriteString("Output prose only: no headings, no commentary, no markup.")
	return b.String()
}

func buildUserPrompt(req *services.GenerateRequest) string {
	var b strings.Builder
	if req.StoryContext != "" {
		b.WriteString("Story context:\n")
		b.WriteString(req.StoryContext)
		b.WriteString("\n\n")
	}
	if req.ExistingText != "" {
		b.WriteString("Rewrite the following passage")
		if req.RewriteInstruction != "" {
			fmt.Fprintf(&b, " (%s)", req.RewriteInstruction)
		}
		b.WriteString(":\n")
		b.WriteString(req.ExistingText)
		b.WriteString("\n\n")
	}
	if req.BeatType == schema.BeatTypeScene && req.TextAfterBeat != "" {
		b.WriteString("The new text must lead naturally into this continuation:\n")
		b.WriteString(req.TextAfterBeat)
		b.WriteString("\n\n")
	}
	b.WriteString("Beat: ")
	b.WriteString(req.Prompt)
	return b.String()
}
