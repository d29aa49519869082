package pubmed

import "context"

// Summary is the esummary metadata for one PMID.
type Summary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Journal string `json:"journal"`
	Year    *int   `json:"year,omitempty"`
}

// ArticleRecord is one PubmedArticle from an efetch XML response.
type ArticleRecord struct {
	PMID     string   `json:"pmid"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Journal  string   `json:"journal"`
	Year     *int     `json:"year,omitempty"`
	Month    string   `json:"month,omitempty"`
	Authors  []string `json:"authors"`
}

// Source is the literature database. Implementations never return errors:
// transport and parse failures are logged and yield empty results so callers
// keep working with whatever coverage is left.
type Source interface {
	// SearchIDs returns up to maxResults PMIDs of abstract-bearing, open
	// access records matching query.
	SearchIDs(ctx context.Context, query string, maxResults int) []string
	// FetchSummaries returns title, journal and year keyed by PMID. PMIDs the
	// service did not describe are absent from the map.
	FetchSummaries(ctx context.Context, ids []string) map[string]Summary
	// FetchAbstract returns the plain-text abstract for one PMID, or "".
	FetchAbstract(ctx context.Context, id string) string
	// FetchArticles returns full XML records, including authors, in the
	// order the service returned them.
	FetchArticles(ctx context.Context, ids []string) []ArticleRecord
}
