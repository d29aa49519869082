package funnel

import "fmt"

// Candidate is a literature record under consideration. Abstract stays empty
// until the record reaches the shortlist.
type Candidate struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Journal  string `json:"journal"`
	Year     *int   `json:"year,omitempty"`
	Abstract string `json:"abstract,omitempty"`
}

// EvidenceSet is the final ordered selection handed to every extractor. Each
// member carries a non-empty abstract.
type EvidenceSet []Candidate

// IDs returns the identifiers in order.
func (e EvidenceSet) IDs() []string {
	ids := make([]string, len(e))
	for i, c := range e {
		ids[i] = c.ID
	}
	return ids
}

// Config bounds each funnel stage.
type Config struct {
	MaxCandidates int
	ShortlistSize int
	FinalSize     int
}

// DefaultConfig returns the caps used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxCandidates: 100,
		ShortlistSize: 5,
		FinalSize:     5,
	}
}

func (c Config) Validate() error {
	if c.MaxCandidates < 1 || c.MaxCandidates > 200 {
		return fmt.Errorf("max candidates must be 1-200, got %d", c.MaxCandidates)
	}
	if c.ShortlistSize < 1 || c.ShortlistSize > 10 {
		return fmt.Errorf("shortlist size must be 1-10, got %d", c.ShortlistSize)
	}
	if c.FinalSize < 1 || c.FinalSize > 10 {
		return fmt.Errorf("final size must be 1-10, got %d", c.FinalSize)
	}
	return nil
}
