// Package lorem is a mock generation provider that streams lorem ipsum
// prose. Used for development and testing without real API keys.
package lorem

import (
	"context"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	"inkwell/internal/domain/services"
)

// Provider streams lorem ipsum text word by word.
type Provider struct {
	generator *loremgen.Lorem
}

// NewProvider creates a new lorem ipsum provider.
func NewProvider() *Provider {
	return &Provider{generator: loremgen.New()}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "lorem"
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-fail"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// getStreamDelay returns the delay between words based on the model name.
func getStreamDelay(model string) time.Duration {
	if strings.Contains(model, "slow") {
		return 500 * time.Millisecond
	}
	if strings.Contains(model, "fast") {
		return time.Millisecond
	}
	return 30 * time.Millisecond
}

// Stream generates a word-by-word lorem ipsum stream. Models containing
// "fail" error out mid-stream to exercise error handling.
func (p *Provider) Stream(ctx context.Context, req *services.GenerateRequest) (<-chan services.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by lorem provider", req.Model)
	}

	targetWords := req.WordCount
	if targetWords <= 0 {
		targetWords = 120
	}
	delay := getStreamDelay(req.Model)
	failAfter := -1
	if strings.Contains(req.Model, "fail") {
		failAfter = targetWords / 2
	}

	events := make(chan services.StreamEvent, 16)
	go func() {
		defer close(events)

		var accumulated strings.Builder
		sent := 0
		for sent < targetWords {
			sentence := p.generator.Sentence(6, 14)
			for _, word := range strings.Fields(sentence) {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if failAfter >= 0 && sent >= failAfter {
					events <- services.StreamEvent{
						Type: services.EventError,
						Err:  fmt.Errorf("simulated provider failure after %d words", sent),
					}
					return
				}

				chunk := word + " "
				if sent > 0 && sent%40 == 0 {
					// Paragraph break roughly every 40 words.
					chunk = "\n\n" + chunk
				}
				accumulated.WriteString(chunk)
				events <- services.StreamEvent{Type: services.EventChunk, Text: chunk}
				sent++

				if delay > 0 {
					time.Sleep(delay)
				}
			}
		}

		events <- services.StreamEvent{
			Type: services.EventComplete,
			Text: strings.TrimSpace(accumulated.String()),
		}
	}()

	return events, nil
}
