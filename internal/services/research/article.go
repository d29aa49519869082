package research

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"litminer/internal/services/extract"
	"litminer/internal/services/funnel"
)

const (
	summaryPrompt  = "Summarize the following article:\n\nTitle: %s\nAbstract: %s\n\n"
	keywordsPrompt = "Extract keywords from the following article. Put each keyword on its own line starting with \"* \".\n\nTitle: %s\nAbstract: %s\n\n"

	titleUnavailable    = "Title not available"
	abstractUnavailable = "Abstract not available"
)

// ArticleDetails is the on-demand digest of a single PubMed article.
type ArticleDetails struct {
	PMID     string            `json:"pmid"`
	Title    string            `json:"title"`
	Abstract string            `json:"abstract,omitempty"`
	Summary  string            `json:"summary,omitempty"`
	Keywords []string          `json:"keywords"`
	QnAPairs []extract.QnAPair `json:"qna_pairs"`
	Message  string            `json:"message"`
}

// ProcessArticle fetches one article by its PubMed URL and digests it with
// the model. Nothing is stored. Failures are reported in Message.
func (s *Service) ProcessArticle(ctx context.Context, articleURL string) ArticleDetails {
	details := ArticleDetails{PMID: "N/A", Title: "N/A", Keywords: []string{}, QnAPairs: []extract.QnAPair{}}

	pmid, ok := PMIDFromURL(articleURL)
	if !ok {
		details.Message = "Invalid PubMed URL"
		return details
	}
	details.PMID = pmid

	text := s.source.FetchAbstract(ctx, pmid)
	if text == "" {
		details.Message = "Error fetching article: no content returned for PMID " + pmid
		return details
	}
	details.Title, details.Abstract = splitTitle(text)

	summary, err := s.gateway.Complete(ctx, fmt.Sprintf(summaryPrompt, details.Title, details.Abstract))
	if err != nil {
		log.Warn().Err(err).Str("pmid", pmid).Msg("Article summary failed")
		details.Message = "Error generating AI insights: " + err.Error()
		return details
	}
	details.Summary = strings.TrimSpace(summary)

	keywords, err := s.gateway.Complete(ctx, fmt.Sprintf(keywordsPrompt, details.Title, details.Abstract))
	if err != nil {
		log.Warn().Err(err).Str("pmid", pmid).Msg("Article keywords failed")
		details.Message = "Error generating AI insights: " + err.Error()
		return details
	}
	details.Keywords = bulletLines(keywords)

	set := funnel.EvidenceSet{{ID: pmid, Title: details.Title, Abstract: details.Abstract}}
	qna := s.pipeline.QnA(ctx, set, details.Title)
	details.QnAPairs = nonNil(qna.Records)
	if qna.State == extract.StateFailedSoft {
		details.Message = "Article processed; Q&A generation returned no usable pairs"
		return details
	}

	details.Message = "Article processed successfully"
	return details
}

// PMIDFromURL returns the last non-empty path segment of a PubMed article URL
// when it is all digits.
func PMIDFromURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Path == "" {
		return "", false
	}
	segments := strings.Split(u.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "" {
			continue
		}
		if strings.Trim(seg, "0123456789") != "" {
			return "", false
		}
		return seg, true
	}
	return "", false
}

func splitTitle(text string) (string, string) {
	text = strings.TrimSpace(text)
	title, abstract := titleUnavailable, abstractUnavailable
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		title = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		if rest := strings.TrimSpace(strings.Join(lines[1:], "\n")); rest != "" {
			abstract = rest
		}
	}
	return title, abstract
}

func bulletLines(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "*") && !strings.HasPrefix(line, "-") {
			continue
		}
		if kw := strings.TrimSpace(strings.Trim(line, "*- ")); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
