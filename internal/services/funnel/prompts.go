package funnel

import (
	"bytes"
	"fmt"
	"text/template"
)

// Prompts renders the two selection prompts. Implementations decide wording
// only; identifier extraction does not depend on it.
type Prompts interface {
	Shortlist(query string, candidates []Candidate, limit int) (string, error)
	Deep(query string, candidates []Candidate, limit int) (string, error)
}

var shortlistTmpl = template.Must(template.New("shortlist").Parse(`Select the most relevant PubMed papers for: {{.Query}}

{{range .Candidates}}PMID: {{.ID}}
Title: {{.Title}}
Journal: {{.Journal}}

{{end}}Reply with the PMIDs of the {{.Limit}} most relevant papers, most relevant first, separated by commas. Use only PMIDs listed above.`))

var deepTmpl = template.Must(template.New("deep").Parse(`Deep search: select the most relevant PubMed papers for: {{.Query}}

{{range .Candidates}}PMID: {{.ID}}
Abstract: {{.Abstract}}

{{end}}Reply with the PMIDs of the {{.Limit}} papers whose abstracts best answer the query, most relevant first, separated by commas. Use only PMIDs listed above.`))

// TemplatePrompts is the default Prompts backed by text/template.
type TemplatePrompts struct{}

func (TemplatePrompts) Shortlist(query string, candidates []Candidate, limit int) (string, error) {
	return render(shortlistTmpl, query, candidates, limit)
}

func (TemplatePrompts) Deep(query string, candidates []Candidate, limit int) (string, error) {
	return render(deepTmpl, query, candidates, limit)
}

func render(tmpl *template.Template, query string, candidates []Candidate, limit int) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Query      string
		Candidates []Candidate
		Limit      int
	}{query, candidates, limit}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
