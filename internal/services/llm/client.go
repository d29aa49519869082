package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"litminer/internal/metrics"
)

// Gateway generates text from a single prompt. Output is free text; any
// structure is requested in the prompt and checked by the caller.
type Gateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, prompt string) (string, error)

func (f GatewayFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Instrumented records request counts and latency for the wrapped gateway.
type Instrumented struct {
	Gateway Gateway
}

func (i Instrumented) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := i.Gateway.Complete(ctx, prompt)
	metrics.LLMDuration.Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMRequests.WithLabelValues(outcome).Inc()

	log.Debug().
		Int("prompt_chars", len(prompt)).
		Int("response_chars", len(text)).
		Dur("duration", time.Since(start)).
		Str("outcome", outcome).
		Msg("LLM completion")
	return text, err
}
