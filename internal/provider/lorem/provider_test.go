package lorem

import (
	"context"
	"strings"
	"testing"

	"inkwell/internal/domain/services"
)

func TestSupportsModel(t *testing.T) {
	p := NewProvider()
	if !p.SupportsModel("lorem-fast") {
		t.Error("expected lorem-fast to be supported")
	}
	if p.SupportsModel("claude-sonnet-4-5") {
		t.Error("claude models should not be supported")
	}
}

func TestStreamProducesRequestedWords(t *testing.T) {
	p := NewProvider()
	events, err := p.Stream(context.Background(), &services.GenerateRequest{
		Model:     "lorem-fast",
		Prompt:    "anything",
		WordCount: 12,
	})
	if err != nil {
		t.Fatalf("Stream error = %v", err)
	}

	var chunks int
	var complete *services.StreamEvent
	var accumulated strings.Builder
	for ev := range events {
		switch ev.Type {
		case services.EventChunk:
			chunks++
			accumulated.WriteString(ev.Text)
		case services.EventComplete:
			e := ev
			complete = &e
		case services.EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}

	if chunks != 12 {
		t.Errorf("chunk events = %d, want 12", chunks)
	}
	if complete == nil {
		t.Fatal("no complete event")
	}
	if got := len(strings.Fields(complete.Text)); got != 12 {
		t.Errorf("completed words = %d, want 12", got)
	}
	if strings.TrimSpace(accumulated.String()) != complete.Text {
		t.Error("complete text does not match accumulated chunks")
	}
}

func TestStreamFailModelErrorsMidStream(t *testing.T) {
	p := NewProvider()
	events, err := p.Stream(context.Background(), &services.GenerateRequest{
		Model:     "lorem-fail",
		WordCount: 10,
	})
	if err != nil {
		t.Fatalf("Stream error = %v", err)
	}

	var sawChunk, sawError bool
	for ev := range events {
		switch ev.Type {
		case services.EventChunk:
			sawChunk = true
		case services.EventError:
			sawError = true
		case services.EventComplete:
			t.Fatal("fail model should not complete")
		}
	}
	if !sawChunk {
		t.Error("expected partial chunks before the failure")
	}
	if !sawError {
		t.Error("expected an error event")
	}
}

func TestStreamRejectsForeignModel(t *testing.T) {
	p := NewProvider()
	if _, err := p.Stream(context.Background(), &services.GenerateRequest{Model: "gpt-4"}); err == nil {
		t.Error("expected an error for unsupported model")
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	p := NewProvider()
	ctx, cancel := context.WithCancel(context.Background())
	events, err := p.Stream(ctx, &services.GenerateRequest{Model: "lorem-slow", WordCount: 500})
	if err != nil {
		t.Fatalf("Stream error = %v", err)
	}
	cancel()

	// The channel must close without delivering the full word count.
	count := 0
	for range events {
		count++
	}
	if count >= 500 {
		t.Errorf("received %d events after cancel", count)
	}
}
