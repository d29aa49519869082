// Package research ties the funnel, the extractors and the store together.
package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"litminer/internal/repo"
	"litminer/internal/services/extract"
	"litminer/internal/services/funnel"
	"litminer/internal/services/llm"
	"litminer/internal/services/pubmed"
)

// ErrNoArticles is returned by ad hoc extraction when no search has stored
// any articles yet.
var ErrNoArticles = errors.New("no stored articles")

const (
	StatusSuccess   = "success"
	StatusNoResults = "no_results"

	articleURLPrefix = "https://pubmed.ncbi.nlm.nih.gov/"
	articleSource    = "PubMed"
	topRelevance     = 0.9
	relevanceStep    = 0.05
)

// Narrower produces the evidence set for a query.
type Narrower interface {
	Narrow(ctx context.Context, query string) (funnel.EvidenceSet, error)
}

type Service struct {
	narrower Narrower
	source   pubmed.Source
	pipeline *extract.Pipeline
	gateway  llm.Gateway
	repo     repo.Repository
}

func NewService(narrower Narrower, source pubmed.Source, pipeline *extract.Pipeline, gateway llm.Gateway, repository repo.Repository) *Service {
	return &Service{
		narrower: narrower,
		source:   source,
		pipeline: pipeline,
		gateway:  gateway,
		repo:     repository,
	}
}

// Counts is the number of records of each kind a run stored.
type Counts struct {
	Articles     int `json:"articles"`
	Entities     int `json:"entities"`
	Relations    int `json:"relations"`
	Statistics   int `json:"statistics"`
	Drugs        int `json:"drugs"`
	Diseases     int `json:"diseases"`
	CoBiomarkers int `json:"co_biomarkers"`
}

type RunResult struct {
	Status   string         `json:"status"`
	RunID    string         `json:"run_id,omitempty"`
	Query    string         `json:"query"`
	Articles []repo.Article `json:"articles,omitempty"`
	Counts   *Counts        `json:"counts,omitempty"`
}

// Search narrows query to an evidence set, runs every persisted extractor over
// it and replaces the stored run. An empty evidence set leaves the store alone.
func (s *Service) Search(ctx context.Context, query string) (*RunResult, error) {
	start := time.Now()
	set, err := s.narrower.Narrow(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to narrow query: %w", err)
	}
	if len(set) == 0 {
		log.Info().Str("query", query).Msg("No evidence found for query")
		return &RunResult{Status: StatusNoResults, Query: query}, nil
	}

	snap := repo.Snapshot{
		Run:      repo.Run{ID: uuid.NewString(), Query: query, CreatedAt: time.Now().UTC()},
		Articles: s.articles(ctx, set),
	}

	var g errgroup.Group
	g.Go(func() error {
		graph, _ := s.pipeline.Entities(ctx, set, query)
		snap.Entities, snap.Relations = graph.Entities, graph.Relations
		return nil
	})
	g.Go(func() error {
		snap.Statistics = s.pipeline.Statistics(ctx, set, query).Records
		return nil
	})
	g.Go(func() error {
		snap.Drugs = s.pipeline.Drugs(ctx, set, query).Records
		return nil
	})
	g.Go(func() error {
		snap.Diseases = s.pipeline.Diseases(ctx, set, query).Records
		return nil
	})
	g.Go(func() error {
		snap.CoBiomarkers = s.pipeline.CoBiomarkers(ctx, set, query).Records
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceAll(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	counts := &Counts{
		Articles:     len(snap.Articles),
		Entities:     len(snap.Entities),
		Relations:    len(snap.Relations),
		Statistics:   len(snap.Statistics),
		Drugs:        len(snap.Drugs),
		Diseases:     len(snap.Diseases),
		CoBiomarkers: len(snap.CoBiomarkers),
	}
	log.Info().
		Str("run_id", snap.Run.ID).
		Str("query", query).
		Interface("counts", counts).
		Dur("duration", time.Since(start)).
		Msg("Search run stored")

	return &RunResult{
		Status:   StatusSuccess,
		RunID:    snap.Run.ID,
		Query:    query,
		Articles: snap.Articles,
		Counts:   counts,
	}, nil
}

// articles builds the stored rows in evidence order. Authors and publication
// month come from the full records when the source returns them.
func (s *Service) articles(ctx context.Context, set funnel.EvidenceSet) []repo.Article {
	full := make(map[string]pubmed.ArticleRecord)
	for _, rec := range s.source.FetchArticles(ctx, set.IDs()) {
		full[rec.PMID] = rec
	}

	out := make([]repo.Article, 0, len(set))
	for i, c := range set {
		a := repo.Article{
			PMID:           c.ID,
			Title:          c.Title,
			Abstract:       c.Abstract,
			Journal:        c.Journal,
			Year:           c.Year,
			Authors:        []string{},
			URL:            articleURLPrefix + c.ID + "/",
			Source:         articleSource,
			RelevanceScore: topRelevance - float64(i)*relevanceStep,
		}
		if rec, ok := full[c.ID]; ok {
			if len(rec.Authors) > 0 {
				a.Authors = rec.Authors
			}
			a.Month = rec.Month
			if a.Year == nil {
				a.Year = rec.Year
			}
			if a.Journal == "" {
				a.Journal = rec.Journal
			}
		}
		out = append(out, a)
	}
	return out
}
