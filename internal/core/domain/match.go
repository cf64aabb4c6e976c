package domain

type MatchStatus string

const (
	MatchExact   MatchStatus = "exact"
	MatchPartial MatchStatus = "partial"
	MatchNone    MatchStatus = "none"
)

// MatchCandidate is one scored candidate document for a report file.
type MatchCandidate struct {
	Document   *Document `json:"document"`
	Confidence int       `json:"confidence"` // 0..100
}

// MatchPreview is the classification result for a single report
// filename. Only exact matches may auto-apply during unattended
// ingestion; partial and none always wait for a human.
type MatchPreview struct {
	FileName        string           `json:"file_name"`
	NormalizedKey   string           `json:"normalized_key"`
	Status          MatchStatus      `json:"status"`
	MatchedDocument *MatchCandidate  `json:"matched_document,omitempty"`
	Suggestions     []MatchCandidate `json:"suggestions"`
}

// MatchThresholds are the tunable matching knobs: confidence cutoffs
// between the tiers and the suggestion-list cap. The original values
// are an implementation detail, so they are configuration, not
// contract.
type MatchThresholds struct {
	Partial        int `yaml:"partial"`         // score >= Partial -> partial with matched document
	None           int `yaml:"none"`            // score < None -> none
	MaxSuggestions int `yaml:"max_suggestions"` // suggestion list length cap
}

func DefaultMatchThresholds() MatchThresholds {
	return MatchThresholds{Partial: 60, None: 30, MaxSuggestions: 5}
}
