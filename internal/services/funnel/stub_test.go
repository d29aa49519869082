package funnel

import (
	"context"
	"strings"

	"litminer/internal/services/pubmed"
)

type stubSource struct {
	ids        []string
	summaries  map[string]pubmed.Summary
	abstracts  map[string]string
	abstractOf []string
}

func (s *stubSource) SearchIDs(ctx context.Context, query string, maxResults int) []string {
	if len(s.ids) > maxResults {
		return s.ids[:maxResults]
	}
	return s.ids
}

func (s *stubSource) FetchSummaries(ctx context.Context, ids []string) map[string]pubmed.Summary {
	out := map[string]pubmed.Summary{}
	for _, id := range ids {
		if sum, ok := s.summaries[id]; ok {
			out[id] = sum
		}
	}
	return out
}

func (s *stubSource) FetchAbstract(ctx context.Context, id string) string {
	s.abstractOf = append(s.abstractOf, id)
	return s.abstracts[id]
}

func (s *stubSource) FetchArticles(ctx context.Context, ids []string) []pubmed.ArticleRecord {
	return nil
}

// scriptedGateway returns one reply per call, in order.
type scriptedGateway struct {
	replies []string
	errs    []error
	prompts []string
}

func (g *scriptedGateway) Complete(ctx context.Context, prompt string) (string, error) {
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], err
	}
	return "", err
}

func fixture(ids ...string) *stubSource {
	s := &stubSource{
		ids:       ids,
		summaries: map[string]pubmed.Summary{},
		abstracts: map[string]string{},
	}
	for _, id := range ids {
		s.summaries[id] = pubmed.Summary{ID: id, Title: "Title " + id, Journal: "Journal " + id}
		s.abstracts[id] = "Abstract " + id
	}
	return s
}

func echo(ids ...string) string {
	return strings.Join(ids, ", ")
}
