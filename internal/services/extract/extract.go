package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"litminer/internal/decode"
	"litminer/internal/services/funnel"
)

func (p *Pipeline) Statistics(ctx context.Context, set funnel.EvidenceSet, query string) Outcome[StatisticalFinding] {
	return run(ctx, p, CategoryStatistics, set, query, decode.Elements, func(raw json.RawMessage) (StatisticalFinding, error) {
		f, err := parseFields(raw, "type", "value")
		if err != nil {
			return StatisticalFinding{}, err
		}
		return StatisticalFinding{
			Type:    f.str("type"),
			Value:   f.str("value"),
			Unit:    f.str("unit"),
			Context: f.str("context"),
		}, nil
	})
}

// KeyFindings keeps findings in one of the fixed categories. A source article
// outside the evidence set is cleared rather than trusted.
func (p *Pipeline) KeyFindings(ctx context.Context, set funnel.EvidenceSet, query string) Outcome[KeyFinding] {
	known := make(map[string]struct{}, len(set))
	for _, c := range set {
		known[c.ID] = struct{}{}
	}
	return run(ctx, p, CategoryKeyFindings, set, query, decode.Elements, func(raw json.RawMessage) (KeyFinding, error) {
		f, err := parseFields(raw, "category", "finding")
		if err != nil {
			return KeyFinding{}, err
		}
		category := strings.ToLower(f.str("category"))
		if _, ok := findingCategories[category]; !ok {
			return KeyFinding{}, fmt.Errorf("unknown finding category %q", category)
		}
		source := firstOf(f, "sourceArticleId", "source_article_id", "pmid")
		if _, ok := known[source]; !ok {
			source = ""
		}
		return KeyFinding{Category: category, Finding: f.str("finding"), SourceArticleID: source}, nil
	})
}

func (p *Pipeline) Biomarkers(ctx context.Context, set funnel.EvidenceSet, query string) Outcome[Biomarker] {
	return run(ctx, p, CategoryBiomarkers, set, query, decode.Elements, func(raw json.RawMessage) (Biomarker, error) {
		f, err := parseFields(raw, "name", "value", "unit")
		if err != nil {
			return Biomarker{}, err
		}
		b := Biomarker{
			ID:          f.str("id"),
			Name:        f.str("name"),
			Value:       f.str("value"),
			Unit:        f.str("unit"),
			Description: f.str("description"),
		}
		if b.ID == "" {
			b.ID = Slug(b.Name)
		}
		nr := f.object("normal_range")
		if nr == nil {
			nr = f.object("normalRange")
		}
		if nr != nil {
			if v, ok := nr.float("min"); ok {
				b.NormalRange.Min = &v
			}
			if v, ok := nr.float("max"); ok {
				b.NormalRange.Max = &v
			}
		}
		return b, nil
	})
}

func (p *Pipeline) CoBiomarkers(ctx context.Context, set funnel.EvidenceSet, query string) Outcome[CoBiomarker] {
	return run(ctx, p, CategoryCoBiomarkers, set, query, decode.Elements, func(raw json.RawMessage) (CoBiomarker, error) {
		f, err := parseFields(raw, "name", "type", "effect", "clinicalImplication", "frequencyOfCooccurrence")
		if err != nil {
			return CoBiomarker{}, err
		}
		return CoBiomarker{
			Name:                    f.str("name"),
			Type:                    f.str("type"),
			Effect:                  f.str("effect"),
			ClinicalImplication:     f.str("clinicalImplication"),
			FrequencyOfCooccurrence: f.str("frequencyOfCooccurrence"),
		}, nil
	})
}

func (p *Pipeline) Drugs(ctx context.Context, set funnel.EvidenceSet, query string) Outcome[Drug] {
	return run(ctx, p, CategoryDrugs, set, query, decode.Elements, func(raw json.RawMessage) (Drug, error) {
		f, err := parseFields(raw, "name", "type", "mechanism", "efficacy", "approvalStatus", "url")
		if err != nil {
			return Drug{}, err
		}
		return Drug{
			Name:           f.str("name"),
			Type:           f.str("type"),
			Mechanism:      f.str("mechanism"),
			Efficacy:       f.str("efficacy"),
			ApprovalStatus: f.str("approvalStatus"),
			URL:            f.str("url"),
		}, nil
	})
}

func (p *Pipeline) Diseases(ctx context.Context, set funnel.EvidenceSet, query string) Outcome[DiseaseAssociation] {
	return run(ctx, p, CategoryDiseases, set, query, decode.Elements, func(raw json.RawMessage) (DiseaseAssociation, error) {
		f, err := parseFields(raw, "disease", "relationship", "strength", "evidence")
		if err != nil {
			return DiseaseAssociation{}, err
		}
		return DiseaseAssociation{
			Disease:      f.str("disease"),
			Relationship: f.str("relationship"),
			Strength:     f.str("strength"),
			Evidence:     f.str("evidence"),
			Notes:        f.str("notes"),
		}, nil
	})
}

func (p *Pipeline) QnA(ctx context.Context, set funnel.EvidenceSet, query string) Outcome[QnAPair] {
	return run(ctx, p, CategoryQnA, set, query, decode.Elements, func(raw json.RawMessage) (QnAPair, error) {
		f, err := parseFields(raw, "question", "answer")
		if err != nil {
			return QnAPair{}, err
		}
		return QnAPair{Question: f.str("question"), Answer: f.str("answer")}, nil
	})
}

// Summary returns nil when the pass failed or the reply had no overview.
func (p *Pipeline) Summary(ctx context.Context, set funnel.EvidenceSet, query string) (*SummarySections, Outcome[SummarySections]) {
	out := run(ctx, p, CategorySummary, set, query, decode.Elements, func(raw json.RawMessage) (SummarySections, error) {
		f, err := parseFields(raw, "overview")
		if err != nil {
			return SummarySections{}, err
		}
		return SummarySections{
			Overview:             f.str("overview"),
			KeyFindings:          firstOf(f, "keyFindings", "key_findings"),
			ClinicalImplications: firstOf(f, "clinicalImplications", "clinical_implications"),
			ResearchGaps:         firstOf(f, "researchGaps", "research_gaps"),
			Conclusion:           f.str("conclusion"),
		}, nil
	})
	if len(out.Records) == 0 {
		return nil, out
	}
	s := out.Records[0]
	return &s, out
}

func firstOf(f fields, keys ...string) string {
	for _, k := range keys {
		if v := f.str(k); v != "" {
			return v
		}
	}
	return ""
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases name and joins its alphanumeric runs with underscores.
func Slug(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
}
