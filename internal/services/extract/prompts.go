package extract

import (
	"bytes"
	"fmt"
	"text/template"

	"litminer/internal/services/funnel"
)

// PromptTemplate renders the prompt for one category over an evidence set.
type PromptTemplate interface {
	Render(category Category, set funnel.EvidenceSet, query string) (string, error)
}

// PromptFunc adapts a function to PromptTemplate.
type PromptFunc func(category Category, set funnel.EvidenceSet, query string) (string, error)

func (f PromptFunc) Render(category Category, set funnel.EvidenceSet, query string) (string, error) {
	return f(category, set, query)
}

const promptDefinitions = `
{{define "articles"}}{{range .Articles}}Title: {{.Title}}
Abstract: {{.Abstract}}

{{end}}{{end}}

{{define "entities"}}Extract biomedical entities and the relations between them from these articles related to: {{.Query}}

Look for genes, proteins, biomarkers, diseases, drugs and treatments, cell types and biological processes.

Articles:
{{template "articles" .}}
Return only a JSON array shaped like this example:
[
  {"name": "EGFR", "type": "gene", "mentions": 5, "relations": [
    {"subject": "EGFR", "predicate": "associated with", "object": "lung cancer", "confidence": 0.9}
  ]},
  {"name": "lung cancer", "type": "disease", "mentions": 8, "relations": []}
]
Every relation subject and object must be the exact name of an entity in the array. Confidence is between 0 and 1.{{end}}

{{define "key_entities"}}Extract the key biomedical entities from these articles related to: {{.Query}}

Focus on genes, proteins, biomarkers, diseases, drugs and treatments, cell types and biological processes. For each entity give its type, how often it is mentioned and its relations to other entities.

Articles:
{{template "articles" .}}
Return only a JSON array shaped like this example:
[
  {"name": "EGFR", "type": "gene", "mentions": 5, "relations": [
    {"subject": "EGFR", "predicate": "associated with", "object": "lung cancer", "confidence": 0.9}
  ]},
  {"name": "lung cancer", "type": "disease", "mentions": 8, "relations": [
    {"subject": "lung cancer", "predicate": "treated by", "object": "erlotinib", "confidence": 0.85}
  ]}
]
Only include entities clearly relevant to the query and give each at least one relation when the text supports it.{{end}}

{{define "statistics"}}Extract statistical findings from these articles related to: {{.Query}}

{{template "articles" .}}
Return only a JSON array of objects with the fields type, value, unit and context, for example:
[{"type": "response rate", "value": 70, "unit": "%", "context": "objective response to osimertinib in EGFR-mutant NSCLC"}]{{end}}

{{define "key_findings"}}Extract key statistical findings from these articles related to: {{.Query}}

Write one-line findings in these categories only:
- survival_15_months: survival at 15 months
- survival_10_months: survival at 10 months
- efficacy: efficacy measures
- significant: statistically significant findings
- hazard_ratio: hazard ratios

Articles:
{{range .Articles}}PMID {{.ID}}: {{.Title}}
Abstract: {{.Abstract}}

{{end}}Return only a JSON array shaped like this example:
[
  {"category": "survival_15_months", "finding": "15-month survival was 45% with treatment vs 30% with control (p=0.001)", "sourceArticleId": "12345678"},
  {"category": "hazard_ratio", "finding": "Hazard ratio for death was 0.65 (95% CI 0.52-0.80)", "sourceArticleId": "12345678"}
]
Only include findings with clear statistical significance. If a category is not covered by the articles, leave it out.{{end}}

{{define "biomarkers"}}Extract biomarkers related to {{.Query}} from the following articles:

{{template "articles" .}}
Return only a JSON array of objects with the fields id, name, value, unit, normal_range {min, max} and description, for example:
[{"id": "ldl", "name": "LDL Cholesterol", "value": 100, "unit": "mg/dL", "normal_range": {"min": 0, "max": 100}, "description": "Low-density lipoprotein, often called bad cholesterol."}]
Give a strict normal range with correct min and max, and set value to a normal value inside that range. Never use null for value. Escape any quotes inside strings so the JSON stays valid.{{end}}

{{define "co_biomarkers"}}Extract co-biomarkers and co-occurring mutations related to {{.Query}} from the following articles:

{{template "articles" .}}
Return only a JSON array of objects with the fields name, type, effect, clinicalImplication and frequencyOfCooccurrence.{{end}}

{{define "drugs"}}Extract at least 4-5 relevant drugs for the query '{{.Query}}' from the following articles:

{{template "articles" .}}
Return only a JSON array of drugs with the fields name, type, mechanism, efficacy, approvalStatus and url.{{end}}

{{define "diseases"}}Extract at least 4-5 relevant diseases for the query '{{.Query}}' from the following articles:

{{template "articles" .}}
Return only a JSON array of diseases with the fields disease, relationship, strength, evidence and notes.{{end}}

{{define "qna"}}Generate concise question and answer pairs based on the following query: {{.Query}}

{{template "articles" .}}
Return only valid JSON as an array of objects: [{"question": "...", "answer": "..."}].{{end}}

{{define "summary"}}Generate a comprehensive summary about {{.Query}} based on the following scientific articles. Focus on key findings, consensus views, and important contradictions or gaps in knowledge.

ARTICLES:
{{template "articles" .}}
Structure the summary in these sections: overview, key findings, clinical implications, research gaps, conclusion.
Return only a JSON object with this structure:
{"overview": "...", "keyFindings": "...", "clinicalImplications": "...", "researchGaps": "...", "conclusion": "..."}{{end}}
`

var defaultTemplates = template.Must(template.New("prompts").Parse(promptDefinitions))

// TemplatePrompts renders the built-in prompt for every category.
type TemplatePrompts struct{}

func (TemplatePrompts) Render(category Category, set funnel.EvidenceSet, query string) (string, error) {
	tmpl := defaultTemplates.Lookup(string(category))
	if tmpl == nil {
		return "", fmt.Errorf("no prompt template for category %q", category)
	}
	var buf bytes.Buffer
	data := struct {
		Query    string
		Articles funnel.EvidenceSet
	}{query, set}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", category, err)
	}
	return buf.String(), nil
}
