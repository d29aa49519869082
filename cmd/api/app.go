package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"litminer/internal/cache"
	"litminer/internal/config"
	"litminer/internal/repo"
	"litminer/internal/services/biomarker"
	"litminer/internal/services/extract"
	"litminer/internal/services/funnel"
	"litminer/internal/services/llm"
	"litminer/internal/services/pubmed"
	"litminer/internal/services/research"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	repo     repo.Repository
	redis    *cache.RedisCache
	service  *research.Service
	analyzer *biomarker.Analyzer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.Database.URL != "" {
		pg, err := repo.NewPostgresRepository(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		a.repo = pg
		log.Info().Msg("Using Postgres store")
	} else {
		a.repo = repo.NewMemoryRepository()
		log.Warn().Msg("DATABASE_URL not set, runs are kept in memory only")
	}

	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
		} else {
			a.redis = redisCache
		}
	}

	var source pubmed.Source = pubmed.NewClient(pubmed.Options{
		BaseURL:    cfg.PubMed.BaseURL,
		APIKey:     cfg.PubMed.APIKey,
		Tool:       cfg.PubMed.Tool,
		Email:      cfg.PubMed.Email,
		HTTPClient: &http.Client{Timeout: cfg.PubMed.Timeout},
	})
	if a.redis != nil {
		source = pubmed.NewCachedSource(source, a.redis, cfg.PubMed.CacheTTL)
	}

	client, err := llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxTokens)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	gateway := llm.Instrumented{Gateway: client}

	selector, err := funnel.NewSelector(source, gateway, nil, funnel.Config{
		MaxCandidates: cfg.PubMed.MaxResults,
		ShortlistSize: cfg.Funnel.ShortlistSize,
		FinalSize:     cfg.Funnel.FinalSize,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.service = research.NewService(selector, source, extract.NewPipeline(gateway, nil), gateway, a.repo)
	a.analyzer = biomarker.NewAnalyzer(gateway)
	return a, nil
}

func (a *app) Close() {
	if a.repo != nil {
		a.repo.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis")
		}
	}
}
