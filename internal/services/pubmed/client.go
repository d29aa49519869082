package pubmed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"litminer/internal/metrics"
)

// DefaultBaseURL is the NCBI E-utilities root.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

const searchFilter = " AND hasabstract[text] AND (free full text[Filter] OR open access[Filter])"

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Tool       string
	Email      string
	HTTPClient *http.Client
}

// Client talks to the E-utilities esearch, esummary and efetch endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	tool       string
	email      string
	httpClient *http.Client
}

var _ Source = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		tool:       opts.Tool,
		email:      opts.Email,
		httpClient: opts.HTTPClient,
	}
}

// SearchTerm builds the esearch term for a user query.
func SearchTerm(query string) string {
	return query + searchFilter
}

func (c *Client) SearchIDs(ctx context.Context, query string, maxResults int) []string {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {SearchTerm(query)},
		"retmode": {"json"},
		"retmax":  {strconv.Itoa(maxResults)},
	}
	body, ok := c.get(ctx, "esearch", params)
	if !ok {
		return nil
	}
	if !gjson.ValidBytes(body) {
		c.fail("esearch", "parse", fmt.Errorf("invalid JSON body"))
		return nil
	}

	var ids []string
	for _, id := range gjson.GetBytes(body, "esearchresult.idlist").Array() {
		if s := strings.TrimSpace(id.String()); s != "" {
			ids = append(ids, s)
		}
	}
	log.Info().Str("query", query).Int("count", len(ids)).Msg("PubMed search completed")
	return ids
}

func (c *Client) FetchSummaries(ctx context.Context, ids []string) map[string]Summary {
	summaries := make(map[string]Summary, len(ids))
	if len(ids) == 0 {
		return summaries
	}

	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(ids, ",")},
		"retmode": {"json"},
	}
	body, ok := c.get(ctx, "esummary", params)
	if !ok {
		return summaries
	}
	if !gjson.ValidBytes(body) {
		c.fail("esummary", "parse", fmt.Errorf("invalid JSON body"))
		return summaries
	}

	result := gjson.GetBytes(body, "result")
	for _, id := range ids {
		if !isPMID(id) {
			continue
		}
		item := result.Get(id)
		if !item.Exists() || item.Get("error").Exists() {
			continue
		}
		summaries[id] = Summary{
			ID:      id,
			Title:   item.Get("title").String(),
			Journal: item.Get("source").String(),
			Year:    parseYear(item.Get("pubdate").String()),
		}
	}
	return summaries
}

func (c *Client) FetchAbstract(ctx context.Context, id string) string {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {id},
		"retmode": {"text"},
		"rettype": {"abstract"},
	}
	body, ok := c.get(ctx, "efetch_text", params)
	if !ok {
		return ""
	}
	return strings.TrimSpace(string(body))
}

func (c *Client) FetchArticles(ctx context.Context, ids []string) []ArticleRecord {
	if len(ids) == 0 {
		return nil
	}
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(ids, ",")},
		"retmode": {"xml"},
	}
	body, ok := c.get(ctx, "efetch_xml", params)
	if !ok {
		return nil
	}
	records, err := ParseArticleSet(body)
	if err != nil {
		c.fail("efetch_xml", "parse", err)
		return nil
	}
	return records
}

// get performs one GET against an E-utility and returns the body when the
// response was a 2xx.
func (c *Client) get(ctx context.Context, operation string, params url.Values) ([]byte, bool) {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	if c.tool != "" {
		params.Set("tool", c.tool)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}

	endpoint := c.baseURL + "/" + endpointFor(operation)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		c.fail(operation, "request", err)
		return nil, false
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.fail(operation, "transport", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.fail(operation, "status", fmt.Errorf("HTTP %d", resp.StatusCode))
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.fail(operation, "transport", err)
		return nil, false
	}

	metrics.PubMedRequests.WithLabelValues(operation, "ok").Inc()
	log.Debug().
		Str("operation", operation).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("PubMed request completed")
	return body, true
}

func (c *Client) fail(operation, outcome string, err error) {
	metrics.PubMedRequests.WithLabelValues(operation, outcome).Inc()
	log.Warn().Err(err).Str("operation", operation).Str("outcome", outcome).Msg("PubMed request failed")
}

func endpointFor(operation string) string {
	switch operation {
	case "esearch":
		return "esearch.fcgi"
	case "esummary":
		return "esummary.fcgi"
	default:
		return "efetch.fcgi"
	}
}

func isPMID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseYear reads a leading four digit year from dates such as "2021 Mar 4"
// or "2019 Winter".
func parseYear(date string) *int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return nil
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return nil
	}
	return &year
}
