package extract

// Category names one extraction pass.
type Category string

const (
	CategoryEntities     Category = "entities"
	CategoryKeyEntities  Category = "key_entities"
	CategoryStatistics   Category = "statistics"
	CategoryKeyFindings  Category = "key_findings"
	CategoryBiomarkers   Category = "biomarkers"
	CategoryCoBiomarkers Category = "co_biomarkers"
	CategoryDrugs        Category = "drugs"
	CategoryDiseases     Category = "diseases"
	CategoryQnA          Category = "qna"
	CategorySummary      Category = "summary"
)

// Categories lists every extraction pass.
var Categories = []Category{
	CategoryEntities,
	CategoryKeyEntities,
	CategoryStatistics,
	CategoryKeyFindings,
	CategoryBiomarkers,
	CategoryCoBiomarkers,
	CategoryDrugs,
	CategoryDiseases,
	CategoryQnA,
	CategorySummary,
}

// DefaultConfidence is assigned to relations the model did not score.
const DefaultConfidence = 0.5

type Entity struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	MentionCount int    `json:"mentions"`
}

// Relation links two entities of the same batch by name.
type Relation struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// Graph is the result of an entity pass. Every relation endpoint names an
// entity in Entities.
type Graph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

type StatisticalFinding struct {
	Type    string `json:"type"`
	Value   string `json:"value"`
	Unit    string `json:"unit,omitempty"`
	Context string `json:"context"`
}

// Key finding categories.
const (
	FindingSurvival15Months = "survival_15_months"
	FindingSurvival10Months = "survival_10_months"
	FindingEfficacy         = "efficacy"
	FindingSignificant      = "significant"
	FindingHazardRatio      = "hazard_ratio"
)

var findingCategories = map[string]struct{}{
	FindingSurvival15Months: {},
	FindingSurvival10Months: {},
	FindingEfficacy:         {},
	FindingSignificant:      {},
	FindingHazardRatio:      {},
}

type KeyFinding struct {
	Category        string `json:"category"`
	Finding         string `json:"finding"`
	SourceArticleID string `json:"sourceArticleId,omitempty"`
}

type NormalRange struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type Biomarker struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Value       string      `json:"value"`
	Unit        string      `json:"unit"`
	NormalRange NormalRange `json:"normal_range"`
	Description string      `json:"description"`
}

type CoBiomarker struct {
	Name                    string `json:"name"`
	Type                    string `json:"type"`
	Effect                  string `json:"effect"`
	ClinicalImplication     string `json:"clinicalImplication"`
	FrequencyOfCooccurrence string `json:"frequencyOfCooccurrence"`
}

type Drug struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Mechanism      string `json:"mechanism"`
	Efficacy       string `json:"efficacy"`
	ApprovalStatus string `json:"approvalStatus"`
	URL            string `json:"url"`
}

type DiseaseAssociation struct {
	Disease      string `json:"disease"`
	Relationship string `json:"relationship"`
	Strength     string `json:"strength"`
	Evidence     string `json:"evidence"`
	Notes        string `json:"notes"`
}

type QnAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type SummarySections struct {
	Overview             string `json:"overview"`
	KeyFindings          string `json:"keyFindings"`
	ClinicalImplications string `json:"clinicalImplications"`
	ResearchGaps         string `json:"researchGaps"`
	Conclusion           string `json:"conclusion"`
}
