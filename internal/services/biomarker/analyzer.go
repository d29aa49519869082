// Package biomarker interprets caller-supplied lab values with the model.
package biomarker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"litminer/internal/decode"
	"litminer/internal/services/llm"
)

// Risk levels.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
	RiskVeryHigh = "very_high"

	DeviationAbove = "above"
	DeviationBelow = "below"
)

var riskLevels = map[string]struct{}{RiskLow: {}, RiskModerate: {}, RiskHigh: {}, RiskVeryHigh: {}}

const analysisPrompt = `Analyze the following biomarkers and provide a summary, risk level, abnormal markers, potential conditions, and lifestyle recommendations. Return only valid JSON in the following format:
{"summary": "string", "risk_level": "low" | "moderate" | "high" | "very_high", "abnormal_markers": [{"id": "string", "name": "string", "value": number, "unit": "string", "deviation": "above" | "below", "deviation_percentage": number}], "potential_conditions": [{"name": "string", "probability": number, "description": "string", "recommendations": ["string"]}], "lifestyle_recommendations": ["string"]}
If a string contains quotes, escape them so the JSON stays valid.

%s`

type Range struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type Input struct {
	ID          string  `json:"id" validate:"required,max=100"`
	Name        string  `json:"name" validate:"required,max=200"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit" validate:"max=50"`
	NormalRange *Range  `json:"normal_range,omitempty"`
}

type AbnormalMarker struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Value               float64 `json:"value"`
	Unit                string  `json:"unit"`
	Deviation           string  `json:"deviation"`
	DeviationPercentage float64 `json:"deviation_percentage"`
}

type Condition struct {
	Name            string   `json:"name"`
	Probability     float64  `json:"probability"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations"`
}

type Analysis struct {
	Summary                  string           `json:"summary"`
	RiskLevel                string           `json:"risk_level"`
	AbnormalMarkers          []AbnormalMarker `json:"abnormal_markers"`
	PotentialConditions      []Condition      `json:"potential_conditions"`
	LifestyleRecommendations []string         `json:"lifestyle_recommendations"`
}

func emptyAnalysis() *Analysis {
	return &Analysis{
		AbnormalMarkers:          []AbnormalMarker{},
		PotentialConditions:      []Condition{},
		LifestyleRecommendations: []string{},
	}
}

type Analyzer struct {
	gateway  llm.Gateway
	validate *validator.Validate
}

func NewAnalyzer(gateway llm.Gateway) *Analyzer {
	return &Analyzer{gateway: gateway, validate: validator.New()}
}

type batch struct {
	Inputs []Input `validate:"required,min=1,max=100,dive"`
}

// Analyze validates inputs and asks the model for an interpretation. Only
// invalid input is an error; a failed model call or unreadable reply gives an
// empty analysis.
func (a *Analyzer) Analyze(ctx context.Context, inputs []Input) (*Analysis, error) {
	if err := a.validate.Struct(batch{Inputs: inputs}); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode biomarkers: %w", err)
	}

	raw, err := a.gateway.Complete(ctx, fmt.Sprintf(analysisPrompt, payload))
	if err != nil {
		log.Warn().Err(err).Int("biomarkers", len(inputs)).Msg("Biomarker analysis call failed")
		return emptyAnalysis(), nil
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable biomarker analysis")
		return emptyAnalysis(), nil
	}
	if len(analysis.AbnormalMarkers) == 0 {
		analysis.AbnormalMarkers = Abnormal(inputs)
	}
	return analysis, nil
}

func parseAnalysis(raw string) (*Analysis, error) {
	v, err := decode.Decode(raw)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("analysis is %T, not an object", v)
	}
	doc := gjson.Parse(decode.Clean(raw))

	out := emptyAnalysis()
	out.Summary = strings.TrimSpace(doc.Get("summary").String())
	if level := strings.ToLower(strings.TrimSpace(doc.Get("risk_level").String())); level != "" {
		if _, ok := riskLevels[level]; ok {
			out.RiskLevel = level
		}
	}

	doc.Get("abnormal_markers").ForEach(func(_, m gjson.Result) bool {
		if !m.IsObject() || m.Get("name").String() == "" {
			return true
		}
		deviation := strings.ToLower(m.Get("deviation").String())
		if deviation != DeviationAbove && deviation != DeviationBelow {
			deviation = ""
		}
		out.AbnormalMarkers = append(out.AbnormalMarkers, AbnormalMarker{
			ID:                  m.Get("id").String(),
			Name:                m.Get("name").String(),
			Value:               m.Get("value").Float(),
			Unit:                m.Get("unit").String(),
			Deviation:           deviation,
			DeviationPercentage: m.Get("deviation_percentage").Float(),
		})
		return true
	})

	doc.Get("potential_conditions").ForEach(func(_, c gjson.Result) bool {
		if !c.IsObject() || c.Get("name").String() == "" {
			return true
		}
		cond := Condition{
			Name:            c.Get("name").String(),
			Probability:     c.Get("probability").Float(),
			Description:     c.Get("description").String(),
			Recommendations: texts(c.Get("recommendations")),
		}
		out.PotentialConditions = append(out.PotentialConditions, cond)
		return true
	})

	out.LifestyleRecommendations = texts(doc.Get("lifestyle_recommendations"))
	return out, nil
}

func texts(r gjson.Result) []string {
	out := []string{}
	r.ForEach(func(_, item gjson.Result) bool {
		if s := strings.TrimSpace(item.String()); s != "" && item.Type == gjson.String {
			out = append(out, s)
		}
		return true
	})
	return out
}

// Abnormal lists the inputs outside their normal range. Deviation is relative
// to the crossed bound; a zero bound gives a zero percentage.
func Abnormal(inputs []Input) []AbnormalMarker {
	out := []AbnormalMarker{}
	for _, in := range inputs {
		if in.NormalRange == nil {
			continue
		}
		var deviation string
		var bound float64
		switch {
		case in.NormalRange.Max != nil && in.Value > *in.NormalRange.Max:
			deviation, bound = DeviationAbove, *in.NormalRange.Max
		case in.NormalRange.Min != nil && in.Value < *in.NormalRange.Min:
			deviation, bound = DeviationBelow, *in.NormalRange.Min
		default:
			continue
		}
		pct := 0.0
		if bound != 0 {
			pct = math.Round(math.Abs(in.Value-bound)/math.Abs(bound)*1000) / 10
		}
		out = append(out, AbnormalMarker{
			ID:                  in.ID,
			Name:                in.Name,
			Value:               in.Value,
			Unit:                in.Unit,
			Deviation:           deviation,
			DeviationPercentage: pct,
		})
	}
	return out
}
