package repo

import (
	"context"
	"sort"
	"sync"

	"litminer/internal/services/extract"
)

// MemoryRepository keeps the latest snapshot in process. It is used when no
// database is configured and in tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) ReplaceAll(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := clone(snap)
	sort.SliceStable(cp.Articles, func(i, j int) bool {
		return cp.Articles[i].RelevanceScore > cp.Articles[j].RelevanceScore
	})

	m.mu.Lock()
	m.snap = &cp
	m.mu.Unlock()
	return nil
}

func clone(snap Snapshot) Snapshot {
	cp := snap
	cp.Articles = append([]Article{}, snap.Articles...)
	cp.Entities = append([]extract.Entity{}, snap.Entities...)
	cp.Relations = append([]extract.Relation{}, snap.Relations...)
	cp.Statistics = append([]extract.StatisticalFinding{}, snap.Statistics...)
	cp.Drugs = append([]extract.Drug{}, snap.Drugs...)
	cp.Diseases = append([]extract.DiseaseAssociation{}, snap.Diseases...)
	cp.CoBiomarkers = append([]extract.CoBiomarker{}, snap.CoBiomarkers...)
	return cp
}

func (m *MemoryRepository) current() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return &Snapshot{}
	}
	return m.snap
}

func (m *MemoryRepository) LatestRun(ctx context.Context) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return Run{}, ErrNotFound
	}
	return m.snap.Run, nil
}

func (m *MemoryRepository) LoadRun(ctx context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return Snapshot{}, ErrNotFound
	}
	return clone(*m.snap), nil
}

func (m *MemoryRepository) ListArticles(ctx context.Context) ([]Article, error) {
	return append([]Article{}, m.current().Articles...), nil
}

func (m *MemoryRepository) ListEntities(ctx context.Context) ([]EntityWithRelations, error) {
	s := m.current()
	return withRelations(s.Entities, s.Relations), nil
}

func (m *MemoryRepository) ListStatistics(ctx context.Context) ([]extract.StatisticalFinding, error) {
	return append([]extract.StatisticalFinding{}, m.current().Statistics...), nil
}

func (m *MemoryRepository) ListDrugs(ctx context.Context) ([]extract.Drug, error) {
	return append([]extract.Drug{}, m.current().Drugs...), nil
}

func (m *MemoryRepository) ListDiseases(ctx context.Context) ([]extract.DiseaseAssociation, error) {
	return append([]extract.DiseaseAssociation{}, m.current().Diseases...), nil
}

func (m *MemoryRepository) ListCoBiomarkers(ctx context.Context) ([]extract.CoBiomarker, error) {
	return append([]extract.CoBiomarker{}, m.current().CoBiomarkers...), nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (m *MemoryRepository) Close() {}
