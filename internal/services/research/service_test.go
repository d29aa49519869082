package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litminer/internal/repo"
	"litminer/internal/services/extract"
	"litminer/internal/services/funnel"
	"litminer/internal/services/llm"
	"litminer/internal/services/pubmed"
)

type fixedNarrower struct {
	set funnel.EvidenceSet
	err error
}

func (n fixedNarrower) Narrow(ctx context.Context, query string) (funnel.EvidenceSet, error) {
	return n.set, n.err
}

type stubSource struct {
	articles  []pubmed.ArticleRecord
	abstracts map[string]string
}

func (s stubSource) SearchIDs(ctx context.Context, query string, maxResults int) []string { return nil }

func (s stubSource) FetchSummaries(ctx context.Context, ids []string) map[string]pubmed.Summary {
	return map[string]pubmed.Summary{}
}

func (s stubSource) FetchAbstract(ctx context.Context, id string) string { return s.abstracts[id] }

func (s stubSource) FetchArticles(ctx context.Context, ids []string) []pubmed.ArticleRecord {
	return s.articles
}

// routedGateway answers by matching a marker in the prompt.
type routedGateway struct {
	mu      sync.Mutex
	routes  map[string]string
	prompts []string
}

func (g *routedGateway) Complete(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	for marker, reply := range g.routes {
		if strings.Contains(prompt, marker) {
			return reply, nil
		}
	}
	return "no idea", nil
}

const (
	entitiesMarker = "Extract biomedical entities"
	statsMarker    = "Extract statistical findings"
	drugsMarker    = "relevant drugs"
	diseasesMarker = "relevant diseases"
	coMarker       = "co-biomarkers"
	qnaMarker      = "question and answer"
)

func routes(entity string) map[string]string {
	return map[string]string{
		entitiesMarker: `[{"name": "` + entity + `", "type": "gene", "mentions": 2, "relations": [{"subject": "` + entity + `", "predicate": "drives", "object": "cancer"}]}, {"name": "cancer", "type": "disease"}]`,
		statsMarker:    `[{"type": "response rate", "value": "70", "unit": "%", "context": "trial"}]`,
		drugsMarker:    `[{"name": "drug-` + entity + `", "type": "TKI", "mechanism": "m", "efficacy": "e", "approvalStatus": "approved", "url": "https://example.org"}]`,
		diseasesMarker: "not json",
		coMarker:       `[{"name": "TP53", "type": "mutation", "effect": "e", "clinicalImplication": "c", "frequencyOfCooccurrence": "f"}]`,
	}
}

var evidence = funnel.EvidenceSet{
	{ID: "111", Title: "EGFR in NSCLC", Journal: "J Onc", Abstract: "EGFR drives NSCLC."},
	{ID: "222", Title: "Osimertinib", Journal: "Lancet", Abstract: "Osimertinib works."},
}

func newService(set funnel.EvidenceSet, gw llm.Gateway, r repo.Repository) *Service {
	src := stubSource{articles: []pubmed.ArticleRecord{
		{PMID: "222", Authors: []string{"Doe Jane"}, Month: "Mar"},
	}}
	return NewService(fixedNarrower{set: set}, src, extract.NewPipeline(gw, nil), gw, r)
}

func TestSearchStoresRun(t *testing.T) {
	store := repo.NewMemoryRepository()
	gw := &routedGateway{routes: routes("EGFR")}

	res, err := newService(evidence, gw, store).Search(context.Background(), "EGFR lung cancer")
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, &Counts{Articles: 2, Entities: 2, Relations: 1, Statistics: 1, Drugs: 1, Diseases: 0, CoBiomarkers: 1}, res.Counts)

	require.Len(t, res.Articles, 2)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/111/", res.Articles[0].URL)
	assert.Equal(t, "PubMed", res.Articles[0].Source)
	assert.Equal(t, 0.9, res.Articles[0].RelevanceScore)
	assert.Less(t, res.Articles[1].RelevanceScore, res.Articles[0].RelevanceScore)
	assert.Equal(t, []string{}, res.Articles[0].Authors)
	assert.Equal(t, []string{"Doe Jane"}, res.Articles[1].Authors)
	assert.Equal(t, "Mar", res.Articles[1].Month)

	run, err := store.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.RunID, run.ID)

	entities, _ := store.ListEntities(context.Background())
	require.Len(t, entities, 2)
	assert.Len(t, entities[0].Relations, 1)
	diseases, _ := store.ListDiseases(context.Background())
	assert.Empty(t, diseases)
}

func TestSearchRerunReplacesStore(t *testing.T) {
	store := repo.NewMemoryRepository()
	ctx := context.Background()

	_, err := newService(evidence, &routedGateway{routes: routes("EGFR")}, store).Search(ctx, "EGFR")
	require.NoError(t, err)
	_, err = newService(evidence, &routedGateway{routes: routes("KRAS")}, store).Search(ctx, "EGFR")
	require.NoError(t, err)

	entities, _ := store.ListEntities(ctx)
	require.Len(t, entities, 2)
	assert.Equal(t, "KRAS", entities[0].Name)

	drugs, _ := store.ListDrugs(ctx)
	require.Len(t, drugs, 1)
	assert.Equal(t, "drug-KRAS", drugs[0].Name)

	articles, _ := store.ListArticles(ctx)
	assert.Len(t, articles, 2)
}

func TestSearchNoResultsLeavesStore(t *testing.T) {
	store := repo.NewMemoryRepository()
	gw := &routedGateway{routes: routes("EGFR")}

	res, err := newService(nil, gw, store).Search(context.Background(), "nothing")
	require.NoError(t, err)

	assert.Equal(t, StatusNoResults, res.Status)
	assert.Empty(t, gw.prompts)
	_, err = store.LatestRun(context.Background())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

type failingRepo struct {
	*repo.MemoryRepository
}

func (failingRepo) ReplaceAll(ctx context.Context, snap repo.Snapshot) error {
	return errors.New("disk full")
}

func TestSearchPersistenceFailure(t *testing.T) {
	gw := &routedGateway{routes: routes("EGFR")}
	_, err := newService(evidence, gw, failingRepo{repo.NewMemoryRepository()}).Search(context.Background(), "EGFR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSearchNarrowError(t *testing.T) {
	svc := NewService(fixedNarrower{err: context.Canceled}, stubSource{}, extract.NewPipeline(&routedGateway{}, nil), &routedGateway{}, repo.NewMemoryRepository())
	_, err := svc.Search(context.Background(), "EGFR")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdhocRequiresStoredArticles(t *testing.T) {
	svc := newService(evidence, &routedGateway{}, repo.NewMemoryRepository())

	_, err := svc.Biomarkers(context.Background(), "EGFR")
	assert.ErrorIs(t, err, ErrNoArticles)
	_, err = svc.Summary(context.Background(), "EGFR")
	assert.ErrorIs(t, err, ErrNoArticles)
}

func TestAdhocRunsOverStoredArticles(t *testing.T) {
	store := repo.NewMemoryRepository()
	ctx := context.Background()
	gw := &routedGateway{routes: routes("EGFR")}
	svc := newService(evidence, gw, store)
	_, err := svc.Search(ctx, "EGFR")
	require.NoError(t, err)

	gw.routes = map[string]string{qnaMarker: `[{"question": "What drives NSCLC?", "answer": "EGFR."}]`}
	pairs, err := svc.QnA(ctx, "EGFR")
	require.NoError(t, err)
	assert.Equal(t, []extract.QnAPair{{Question: "What drives NSCLC?", Answer: "EGFR."}}, pairs)
	assert.Contains(t, gw.prompts[len(gw.prompts)-1], "Title: Osimertinib\nAbstract: Osimertinib works.")

	biomarkers, err := svc.Biomarkers(ctx, "EGFR")
	require.NoError(t, err)
	assert.NotNil(t, biomarkers)
	assert.Empty(t, biomarkers)

	summary, err := svc.Summary(ctx, "EGFR")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, extract.SummarySections{}, *summary)

	drugs, _ := store.ListDrugs(ctx)
	assert.Len(t, drugs, 1)
}
