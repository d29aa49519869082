package pubmed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

type articleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID    string `xml:"MedlineCitation>PMID"`
	Article struct {
		Title   innerText `xml:"ArticleTitle"`
		Journal struct {
			Title   string `xml:"Title"`
			PubDate struct {
				Year        string `xml:"Year"`
				Month       string `xml:"Month"`
				MedlineDate string `xml:"MedlineDate"`
			} `xml:"JournalIssue>PubDate"`
		} `xml:"Journal"`
		Abstract []abstractText `xml:"Abstract>AbstractText"`
		Authors  []author       `xml:"AuthorList>Author"`
	} `xml:"MedlineCitation>Article"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Text  innerText
}

func (a *abstractText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	return a.Text.UnmarshalXML(d, start)
}

type author struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

// innerText collects all character data below an element, so inline markup
// such as <i> or <sup> inside titles and abstracts is flattened.
type innerText string

func (t *innerText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(v)
		}
	}
	*t = innerText(strings.Join(strings.Fields(b.String()), " "))
	return nil
}

// ParseArticleSet decodes an efetch retmode=xml PubmedArticleSet document.
func ParseArticleSet(data []byte) ([]ArticleRecord, error) {
	var set articleSet
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("decode PubmedArticleSet: %w", err)
	}

	records := make([]ArticleRecord, 0, len(set.Articles))
	for _, a := range set.Articles {
		pmid := strings.TrimSpace(a.PMID)
		if pmid == "" {
			continue
		}
		date := a.Article.Journal.PubDate
		year := parseYear(date.Year)
		if year == nil {
			year = parseYear(date.MedlineDate)
		}
		records = append(records, ArticleRecord{
			PMID:     pmid,
			Title:    string(a.Article.Title),
			Abstract: joinAbstract(a.Article.Abstract),
			Journal:  strings.TrimSpace(a.Article.Journal.Title),
			Year:     year,
			Month:    strings.TrimSpace(date.Month),
			Authors:  authorNames(a.Article.Authors),
		})
	}
	return records, nil
}

func joinAbstract(parts []abstractText) string {
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		text := string(p.Text)
		if text == "" {
			continue
		}
		if p.Label != "" {
			text = p.Label + ": " + text
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n")
}

func authorNames(authors []author) []string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		last := strings.TrimSpace(a.LastName)
		switch {
		case last != "" && a.ForeName != "":
			names = append(names, last+" "+strings.TrimSpace(a.ForeName))
		case last != "" && a.Initials != "":
			names = append(names, last+" "+strings.TrimSpace(a.Initials))
		case last != "":
			names = append(names, last)
		case strings.TrimSpace(a.CollectiveName) != "":
			names = append(names, strings.TrimSpace(a.CollectiveName))
		}
	}
	return names
}
