// Package funnel narrows a broad literature search down to a small evidence
// set in two LLM-ranked rounds: titles first, then abstracts.
package funnel

import (
	"context"

	"github.com/rs/zerolog/log"

	"litminer/internal/metrics"
	"litminer/internal/services/llm"
	"litminer/internal/services/pubmed"
)

// Placeholders for candidates the summary response left out.
const (
	missingTitle   = "Title not available"
	missingJournal = "Unknown Journal"
)

// Selector runs the funnel. All external calls happen sequentially.
type Selector struct {
	source  pubmed.Source
	gateway llm.Gateway
	prompts Prompts
	cfg     Config
}

func NewSelector(source pubmed.Source, gateway llm.Gateway, prompts Prompts, cfg Config) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prompts == nil {
		prompts = TemplatePrompts{}
	}
	return &Selector{source: source, gateway: gateway, prompts: prompts, cfg: cfg}, nil
}

// Narrow returns the evidence set for query. An empty set means nothing
// relevant was found or an upstream step failed; the only error returned is
// context cancellation.
func (s *Selector) Narrow(ctx context.Context, query string) (EvidenceSet, error) {
	logger := log.With().Str("query", query).Logger()

	ids := dedupe(s.source.SearchIDs(ctx, query, s.cfg.MaxCandidates))
	if len(ids) > s.cfg.MaxCandidates {
		ids = ids[:s.cfg.MaxCandidates]
	}
	observe("candidates", len(ids))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		logger.Info().Msg("No candidate articles found")
		return nil, nil
	}

	summaries := s.source.FetchSummaries(ctx, ids)
	if len(summaries) == 0 {
		logger.Warn().Int("candidates", len(ids)).Msg("No candidate metadata available")
		return nil, ctx.Err()
	}
	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		c := Candidate{ID: id, Title: missingTitle, Journal: missingJournal}
		if sum, ok := summaries[id]; ok {
			c.Title, c.Journal, c.Year = sum.Title, sum.Journal, sum.Year
		} else {
			logger.Debug().Str("pmid", id).Msg("Candidate missing from summaries")
		}
		candidates = append(candidates, c)
	}
	observe("described", len(summaries))

	shortlist, err := s.selectRound(ctx, "shortlist", query, candidates, s.cfg.ShortlistSize, s.prompts.Shortlist)
	if err != nil || len(shortlist) == 0 {
		return nil, err
	}

	byID := index(candidates)
	withAbstracts := make([]Candidate, 0, len(shortlist))
	for _, id := range shortlist {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abstract := s.source.FetchAbstract(ctx, id)
		if abstract == "" {
			logger.Warn().Str("pmid", id).Msg("Dropping shortlisted article without abstract")
			continue
		}
		c := byID[id]
		c.Abstract = abstract
		withAbstracts = append(withAbstracts, c)
	}
	observe("abstracts", len(withAbstracts))
	if len(withAbstracts) == 0 {
		return nil, ctx.Err()
	}

	final, err := s.selectRound(ctx, "final", query, withAbstracts, s.cfg.FinalSize, s.prompts.Deep)
	if err != nil || len(final) == 0 {
		return nil, err
	}

	byID = index(withAbstracts)
	set := make(EvidenceSet, 0, len(final))
	for _, id := range final {
		set = append(set, byID[id])
	}
	logger.Info().Strs("pmids", set.IDs()).Msg("Evidence set selected")
	return set, nil
}

type promptFunc func(query string, candidates []Candidate, limit int) (string, error)

// selectRound asks the model to rank candidates and returns the recognised
// identifiers. Gateway failures end the round with no identifiers.
func (s *Selector) selectRound(ctx context.Context, stage, query string, candidates []Candidate, limit int, build promptFunc) ([]string, error) {
	prompt, err := build(query, candidates, limit)
	if err != nil {
		return nil, err
	}

	text, err := s.gateway.Complete(ctx, prompt)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		log.Warn().Err(err).Str("stage", stage).Msg("Selection round failed")
		observe(stage, 0)
		return nil, nil
	}

	allowed := make([]string, len(candidates))
	for i, c := range candidates {
		allowed[i] = c.ID
	}
	picked := PickIDs(text, allowed, limit)
	observe(stage, len(picked))
	if len(picked) == 0 {
		log.Info().Str("stage", stage).Msg("Selection round returned no known identifiers")
	}
	return picked, nil
}

func observe(stage string, n int) {
	metrics.FunnelStageSize.WithLabelValues(stage).Observe(float64(n))
}

func index(candidates []Candidate) map[string]Candidate {
	m := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		m[c.ID] = c
	}
	return m
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
