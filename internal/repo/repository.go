package repo

import (
	"context"
	"errors"
	"time"

	"litminer/internal/services/extract"
)

var ErrNotFound = errors.New("not found")

// Repository holds the records of the latest search run. Writes replace the
// whole store at once; readers see either the old run or the new one.
type Repository interface {
	ReplaceAll(ctx context.Context, snap Snapshot) error
	LatestRun(ctx context.Context) (Run, error)
	// LoadRun reads the whole stored run from one consistent view.
	LoadRun(ctx context.Context) (Snapshot, error)
	ListArticles(ctx context.Context) ([]Article, error)
	ListEntities(ctx context.Context) ([]EntityWithRelations, error)
	ListStatistics(ctx context.Context) ([]extract.StatisticalFinding, error)
	ListDrugs(ctx context.Context) ([]extract.Drug, error)
	ListDiseases(ctx context.Context) ([]extract.DiseaseAssociation, error)
	ListCoBiomarkers(ctx context.Context) ([]extract.CoBiomarker, error)
	Ping(ctx context.Context) error
	Close()
}

// Article is a persisted evidence record.
type Article struct {
	PMID           string   `json:"pmid"`
	Title          string   `json:"title"`
	Abstract       string   `json:"abstract"`
	Journal        string   `json:"journal"`
	Year           *int     `json:"year,omitempty"`
	Month          string   `json:"month,omitempty"`
	Authors        []string `json:"authors"`
	URL            string   `json:"url"`
	Source         string   `json:"source"`
	RelevanceScore float64  `json:"relevance_score"`
}

// EntityWithRelations is an entity together with the relations it is the
// subject of.
type EntityWithRelations struct {
	extract.Entity
	Relations []extract.Relation `json:"relations"`
}

type Run struct {
	ID        string    `json:"run_id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is everything one search run persists.
type Snapshot struct {
	Run          Run                          `json:"run"`
	Articles     []Article                    `json:"articles"`
	Entities     []extract.Entity             `json:"entities"`
	Relations    []extract.Relation           `json:"relations"`
	Statistics   []extract.StatisticalFinding `json:"statistics"`
	Drugs        []extract.Drug               `json:"drugs"`
	Diseases     []extract.DiseaseAssociation `json:"diseases"`
	CoBiomarkers []extract.CoBiomarker        `json:"co_biomarkers"`
}

// withRelations groups relations under their subject entity, keeping entity
// order.
func withRelations(entities []extract.Entity, relations []extract.Relation) []EntityWithRelations {
	bySubject := make(map[string][]extract.Relation)
	for _, r := range relations {
		bySubject[r.Subject] = append(bySubject[r.Subject], r)
	}
	out := make([]EntityWithRelations, 0, len(entities))
	for _, e := range entities {
		rels := bySubject[e.Name]
		if rels == nil {
			rels = []extract.Relation{}
		}
		out = append(out, EntityWithRelations{Entity: e, Relations: rels})
	}
	return out
}
