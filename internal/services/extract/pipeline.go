// Package extract turns an evidence set into typed records, one LLM pass per
// category. Every pass fails soft: a gateway error or undecodable reply gives
// an empty result for that category and nothing else.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"litminer/internal/decode"
	"litminer/internal/metrics"
	"litminer/internal/services/funnel"
	"litminer/internal/services/llm"
)

// State is the position of one pass in its single-shot lifecycle.
type State string

const (
	StatePending     State = "pending"
	StatePromptBuilt State = "prompt_built"
	StateModelCalled State = "model_called"
	StateDecoded     State = "decoded"
	StateAccepted    State = "accepted"
	StateFailedSoft  State = "failed_soft"
)

// Outcome is what one pass produced. Records is empty whenever State is
// StateFailedSoft.
type Outcome[T any] struct {
	Category Category
	State    State
	Records  []T
	Dropped  int
	Err      error
}

// Pipeline runs extraction passes against one gateway.
type Pipeline struct {
	gateway llm.Gateway
	prompts PromptTemplate
}

func NewPipeline(gateway llm.Gateway, prompts PromptTemplate) *Pipeline {
	if prompts == nil {
		prompts = TemplatePrompts{}
	}
	return &Pipeline{gateway: gateway, prompts: prompts}
}

type splitFunc func(raw string) ([]json.RawMessage, error)

type convertFunc[T any] func(raw json.RawMessage) (T, error)

// errEmptySet marks a pass skipped because there was nothing to read.
var errEmptySet = errors.New("empty evidence set")

// run drives one pass: build the prompt, call the model once, decode, then
// convert each element. Elements that fail conversion are dropped and counted.
func run[T any](ctx context.Context, p *Pipeline, category Category, set funnel.EvidenceSet, query string, split splitFunc, convert convertFunc[T]) Outcome[T] {
	out := Outcome[T]{Category: category, State: StatePending}
	logger := log.With().Str("category", string(category)).Logger()

	fail := func(result string, err error) Outcome[T] {
		out.State = StateFailedSoft
		out.Records = nil
		out.Err = err
		if result != "" {
			metrics.ExtractionRecords.WithLabelValues(string(category), result).Inc()
		}
		return out
	}

	if len(set) == 0 {
		logger.Debug().Msg("Skipping extraction for empty evidence set")
		return fail("", errEmptySet)
	}

	prompt, err := p.prompts.Render(category, set, query)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build extraction prompt")
		return fail("prompt_error", err)
	}
	out.State = StatePromptBuilt

	raw, err := p.gateway.Complete(ctx, prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("Extraction model call failed")
		return fail("gateway_error", err)
	}
	out.State = StateModelCalled

	elements, err := split(raw)
	if err != nil {
		ev := logger.Warn().Err(err)
		var failure *decode.Failure
		if errors.As(err, &failure) {
			ev = ev.Str("raw", truncate(failure.Raw, 500))
		}
		ev.Msg("Discarding undecodable extraction response")
		return fail("decode_failure", err)
	}
	out.State = StateDecoded

	for i, element := range elements {
		record, err := convert(element)
		if err != nil {
			out.Dropped++
			logger.Warn().Err(err).Int("index", i).Str("element", truncate(string(element), 300)).Msg("Dropping extracted element")
			continue
		}
		out.Records = append(out.Records, record)
	}
	metrics.ExtractionRecords.WithLabelValues(string(category), "accepted").Add(float64(len(out.Records)))
	metrics.ExtractionRecords.WithLabelValues(string(category), "dropped").Add(float64(out.Dropped))

	out.State = StateAccepted
	logger.Info().Int("records", len(out.Records)).Int("dropped", out.Dropped).Msg("Extraction completed")
	return out
}

// truncate keeps at most n bytes of s without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
