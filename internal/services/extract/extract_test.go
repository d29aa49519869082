package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litminer/internal/services/funnel"
	"litminer/internal/services/llm"
)

type fixedGateway struct {
	reply   string
	err     error
	prompts []string
}

func (g *fixedGateway) Complete(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

var evidence = funnel.EvidenceSet{
	{ID: "111", Title: "EGFR in lung cancer", Journal: "J Onc", Abstract: "EGFR mutations drive NSCLC."},
	{ID: "222", Title: "Osimertinib outcomes", Journal: "Lancet", Abstract: "Osimertinib improved survival."},
}

func pipelineWith(reply string) (*Pipeline, *fixedGateway) {
	gw := &fixedGateway{reply: reply}
	return NewPipeline(gw, nil), gw
}

func TestEntitiesFromFencedReply(t *testing.T) {
	p, gw := pipelineWith("```json\n[{\"name\":\"EGFR\",\"type\":\"gene\",\"mentions\":5,\"relations\":[]}]\n```")

	g, out := p.Entities(context.Background(), evidence, "EGFR lung cancer")

	assert.Equal(t, StateAccepted, out.State)
	assert.Equal(t, []Entity{{Name: "EGFR", Type: "gene", MentionCount: 5}}, g.Entities)
	assert.Empty(t, g.Relations)
	require.Len(t, gw.prompts, 1)
	assert.Contains(t, gw.prompts[0], "Title: EGFR in lung cancer\nAbstract: EGFR mutations drive NSCLC.")
	assert.Contains(t, gw.prompts[0], "EGFR lung cancer")
}

func TestEntitiesDropDanglingRelations(t *testing.T) {
	p, _ := pipelineWith(`[
		{"name": "EGFR", "type": "gene", "mentions": 3, "relations": [
			{"subject": "EGFR", "predicate": "drives", "object": "NSCLC", "confidence": 0.9},
			{"subject": "EGFR", "predicate": "binds", "object": "KRAS"}
		]},
		{"name": "NSCLC", "type": "disease", "relations": [
			{"subject": "NSCLC", "predicate": "treated by", "object": "osimertinib", "confidence": 1.4}
		]}
	]`)

	g, _ := p.Entities(context.Background(), evidence, "EGFR")

	require.Len(t, g.Entities, 2)
	assert.Equal(t, "EGFR", g.Entities[0].Name)
	assert.Equal(t, Entity{Name: "NSCLC", Type: "disease", MentionCount: 1}, g.Entities[1])
	assert.Equal(t, []Relation{{Subject: "EGFR", Predicate: "drives", Object: "NSCLC", Confidence: 0.9}}, g.Relations)
}

func TestEntitiesObjectShape(t *testing.T) {
	p, _ := pipelineWith(`{"entities": [
		{"name": "BRCA1", "type": "gene", "mentionCount": "4"},
		{"name": "breast cancer", "type": "disease"},
		{"name": "BRCA1", "type": "protein"}
	], "relations": [
		{"subject": "BRCA1", "predicate": "associated with", "object": "breast cancer"},
		{"subject": "BRCA1", "predicate": "associated with", "object": "breast cancer", "confidence": 0.2}
	]}`)

	g, out := p.KeyEntities(context.Background(), evidence, "BRCA1")

	assert.Equal(t, StateAccepted, out.State)
	require.Len(t, g.Entities, 2)
	assert.Equal(t, Entity{Name: "BRCA1", Type: "gene", MentionCount: 4}, g.Entities[0])
	require.Len(t, g.Relations, 1)
	assert.Equal(t, DefaultConfidence, g.Relations[0].Confidence)
}

func TestBiomarkersProseReplyIsEmpty(t *testing.T) {
	p, _ := pipelineWith("I could not find any biomarkers in these articles.")

	out := p.Biomarkers(context.Background(), evidence, "hba1c")

	assert.Equal(t, StateFailedSoft, out.State)
	assert.Empty(t, out.Records)
	assert.Error(t, out.Err)
}

func TestBiomarkers(t *testing.T) {
	p, _ := pipelineWith(`[
		{"id": "ldl", "name": "LDL Cholesterol", "value": 100, "unit": "mg/dL", "normal_range": {"min": 0, "max": 100}, "description": "Low-density lipoprotein"},
		{"name": "Fasting Glucose", "value": "85", "unit": "mg/dL", "normal_range": {"min": "70", "max": null}},
		{"name": "CRP", "unit": "mg/L"}
	]`)

	out := p.Biomarkers(context.Background(), evidence, "cholesterol")

	require.Len(t, out.Records, 2)
	assert.Equal(t, 1, out.Dropped)

	ldl := out.Records[0]
	assert.Equal(t, "ldl", ldl.ID)
	assert.Equal(t, "100", ldl.Value)
	require.NotNil(t, ldl.NormalRange.Max)
	assert.Equal(t, 100.0, *ldl.NormalRange.Max)

	glucose := out.Records[1]
	assert.Equal(t, "fasting_glucose", glucose.ID)
	require.NotNil(t, glucose.NormalRange.Min)
	assert.Equal(t, 70.0, *glucose.NormalRange.Min)
	assert.Nil(t, glucose.NormalRange.Max)
}

func TestEmptyEvidenceSkipsModel(t *testing.T) {
	p, gw := pipelineWith(`[{"question": "q", "answer": "a"}]`)

	out := p.QnA(context.Background(), nil, "anything")

	assert.Equal(t, StateFailedSoft, out.State)
	assert.Empty(t, out.Records)
	assert.Empty(t, gw.prompts)
}

func TestGatewayErrorFailsSoft(t *testing.T) {
	gw := &fixedGateway{err: errors.New("upstream 502")}
	p := NewPipeline(gw, nil)

	out := p.Drugs(context.Background(), evidence, "osimertinib")

	assert.Equal(t, StateFailedSoft, out.State)
	assert.Empty(t, out.Records)
	assert.EqualError(t, out.Err, "upstream 502")
}

func TestDropsElementsMissingRequiredKeys(t *testing.T) {
	p, _ := pipelineWith(`[
		{"disease": "NSCLC", "relationship": "driver", "strength": "strong", "evidence": "trial data"},
		{"disease": "colorectal cancer", "relationship": "", "strength": "weak", "evidence": "case series"},
		"not an object",
		{"disease": "glioma", "relationship": "amplified", "strength": "moderate", "evidence": "cohort", "notes": "EGFRvIII"}
	]`)

	out := p.Diseases(context.Background(), evidence, "EGFR")

	require.Len(t, out.Records, 2)
	assert.Equal(t, 2, out.Dropped)
	assert.Equal(t, "NSCLC", out.Records[0].Disease)
	assert.Equal(t, "EGFRvIII", out.Records[1].Notes)
}

func TestKeyFindingsFiltersCategories(t *testing.T) {
	p, gw := pipelineWith(`[
		{"category": "hazard_ratio", "finding": "HR 0.65 (95% CI 0.52-0.80)", "sourceArticleId": "111"},
		{"category": "Efficacy", "finding": "ORR 70%", "sourceArticleId": "999"},
		{"category": "toxicity", "finding": "grade 3 rash in 5%"}
	]`)

	out := p.KeyFindings(context.Background(), evidence, "EGFR")

	assert.Equal(t, []KeyFinding{
		{Category: FindingHazardRatio, Finding: "HR 0.65 (95% CI 0.52-0.80)", SourceArticleID: "111"},
		{Category: FindingEfficacy, Finding: "ORR 70%"},
	}, out.Records)
	assert.Equal(t, 1, out.Dropped)
	assert.Contains(t, gw.prompts[0], "PMID 222: Osimertinib outcomes")
}

func TestStatistics(t *testing.T) {
	p, _ := pipelineWith(`[{"type": "response rate", "value": 70, "unit": "%", "context": "osimertinib"}, {"type": "p-value"}]`)

	out := p.Statistics(context.Background(), evidence, "EGFR")

	assert.Equal(t, []StatisticalFinding{{Type: "response rate", Value: "70", Unit: "%", Context: "osimertinib"}}, out.Records)
}

func TestCoBiomarkersAndDrugs(t *testing.T) {
	p, _ := pipelineWith(`[{"name": "TP53", "type": "mutation", "effect": "worse prognosis", "clinicalImplication": "shorter PFS", "frequencyOfCooccurrence": "30%"}]`)
	co := p.CoBiomarkers(context.Background(), evidence, "EGFR")
	assert.Equal(t, []CoBiomarker{{Name: "TP53", Type: "mutation", Effect: "worse prognosis", ClinicalImplication: "shorter PFS", FrequencyOfCooccurrence: "30%"}}, co.Records)

	p, _ = pipelineWith(`[{"name": "Osimertinib", "type": "TKI", "mechanism": "EGFR inhibitor", "efficacy": "high", "approvalStatus": "approved", "url": "https://example.org/osimertinib"}, {"name": "Gefitinib"}]`)
	drugs := p.Drugs(context.Background(), evidence, "EGFR")
	require.Len(t, drugs.Records, 1)
	assert.Equal(t, "approved", drugs.Records[0].ApprovalStatus)
	assert.Equal(t, 1, drugs.Dropped)
}

func TestSummary(t *testing.T) {
	p, _ := pipelineWith("```\n{\"overview\": \"EGFR is a driver.\", \"key_findings\": \"TKIs work.\", \"conclusion\": \"Test early.\"}\n```")

	s, out := p.Summary(context.Background(), evidence, "EGFR")

	require.NotNil(t, s)
	assert.Equal(t, StateAccepted, out.State)
	assert.Equal(t, SummarySections{Overview: "EGFR is a driver.", KeyFindings: "TKIs work.", Conclusion: "Test early."}, *s)

	p, _ = pipelineWith(`{"conclusion": "no overview"}`)
	s, _ = p.Summary(context.Background(), evidence, "EGFR")
	assert.Nil(t, s)
}

func TestCustomPrompts(t *testing.T) {
	gw := llm.GatewayFunc(func(ctx context.Context, prompt string) (string, error) {
		assert.Equal(t, "qna:EGFR:2", prompt)
		return `[{"question": "What is EGFR?", "answer": "A receptor."}]`, nil
	})
	prompts := PromptFunc(func(category Category, set funnel.EvidenceSet, query string) (string, error) {
		return string(category) + ":" + query + ":" + string(rune('0'+len(set))), nil
	})

	out := NewPipeline(gw, prompts).QnA(context.Background(), evidence, "EGFR")

	assert.Equal(t, []QnAPair{{Question: "What is EGFR?", Answer: "A receptor."}}, out.Records)
}

func TestTemplatePromptsCoverEveryCategory(t *testing.T) {
	for _, c := range Categories {
		prompt, err := TemplatePrompts{}.Render(c, evidence, "EGFR")
		require.NoError(t, err, c)
		assert.Contains(t, prompt, "EGFR", c)
		assert.Contains(t, prompt, "Osimertinib outcomes", c)
	}
	_, err := TemplatePrompts{}.Render("unknown", evidence, "EGFR")
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "ldl_cholesterol", Slug("LDL Cholesterol"))
	assert.Equal(t, "hba1c", Slug(" HbA1c "))
	assert.Equal(t, "il_6", Slug("IL-6"))
}
