package research

import (
	"context"
	"fmt"

	"litminer/internal/services/extract"
	"litminer/internal/services/funnel"
)

// evidence rebuilds an evidence set from the stored articles.
func (s *Service) evidence(ctx context.Context) (funnel.EvidenceSet, error) {
	articles, err := s.repo.ListArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load articles: %w", err)
	}
	if len(articles) == 0 {
		return nil, ErrNoArticles
	}
	set := make(funnel.EvidenceSet, 0, len(articles))
	for _, a := range articles {
		set = append(set, funnel.Candidate{
			ID:       a.PMID,
			Title:    a.Title,
			Journal:  a.Journal,
			Year:     a.Year,
			Abstract: a.Abstract,
		})
	}
	return set, nil
}

// adhoc runs one extractor over the stored articles. Results are not stored.
func adhoc[T any](ctx context.Context, s *Service, query string, run func(context.Context, funnel.EvidenceSet, string) T) (T, error) {
	var zero T
	set, err := s.evidence(ctx)
	if err != nil {
		return zero, err
	}
	return run(ctx, set, query), nil
}

func (s *Service) Biomarkers(ctx context.Context, query string) ([]extract.Biomarker, error) {
	return adhoc(ctx, s, query, func(ctx context.Context, set funnel.EvidenceSet, q string) []extract.Biomarker {
		return nonNil(s.pipeline.Biomarkers(ctx, set, q).Records)
	})
}

func (s *Service) QnA(ctx context.Context, query string) ([]extract.QnAPair, error) {
	return adhoc(ctx, s, query, func(ctx context.Context, set funnel.EvidenceSet, q string) []extract.QnAPair {
		return nonNil(s.pipeline.QnA(ctx, set, q).Records)
	})
}

// Summary returns empty sections when the model gave no usable summary.
func (s *Service) Summary(ctx context.Context, query string) (*extract.SummarySections, error) {
	return adhoc(ctx, s, query, func(ctx context.Context, set funnel.EvidenceSet, q string) *extract.SummarySections {
		sections, _ := s.pipeline.Summary(ctx, set, q)
		if sections == nil {
			return &extract.SummarySections{}
		}
		return sections
	})
}

func (s *Service) KeyFindings(ctx context.Context, query string) ([]extract.KeyFinding, error) {
	return adhoc(ctx, s, query, func(ctx context.Context, set funnel.EvidenceSet, q string) []extract.KeyFinding {
		return nonNil(s.pipeline.KeyFindings(ctx, set, q).Records)
	})
}

func (s *Service) KeyEntities(ctx context.Context, query string) (extract.Graph, error) {
	return adhoc(ctx, s, query, func(ctx context.Context, set funnel.EvidenceSet, q string) extract.Graph {
		graph, _ := s.pipeline.KeyEntities(ctx, set, q)
		return graph
	})
}

func (s *Service) Drugs(ctx context.Context, query string) ([]extract.Drug, error) {
	return adhoc(ctx, s, query, func(ctx context.Context, set funnel.EvidenceSet, q string) []extract.Drug {
		return nonNil(s.pipeline.Drugs(ctx, set, q).Records)
	})
}

func (s *Service) Diseases(ctx context.Context, query string) ([]extract.DiseaseAssociation, error) {
	return adhoc(ctx, s, query, func(ctx context.Context, set funnel.EvidenceSet, q string) []extract.DiseaseAssociation {
		return nonNil(s.pipeline.Diseases(ctx, set, q).Records)
	})
}

func (s *Service) CoBiomarkers(ctx context.Context, query string) ([]extract.CoBiomarker, error) {
	return adhoc(ctx, s, query, func(ctx context.Context, set funnel.EvidenceSet, q string) []extract.CoBiomarker {
		return nonNil(s.pipeline.CoBiomarkers(ctx, set, q).Records)
	})
}

// nonNil keeps empty results serialising as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
