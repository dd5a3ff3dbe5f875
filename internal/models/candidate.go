// internal/models/candidate.go
package models

import "time"

// Candidate is an unpersisted, LLM-proposed product. It lives only for the
// duration of one pipeline pass; the quality verifier may mutate it in place.
type Candidate struct {
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	Subcategory      string  `json:"subcategory"`
	Description      string  `json:"description"`
	PriceRangeLow    float64 `json:"priceRangeLow"`
	PriceRangeHigh   float64 `json:"priceRangeHigh"`
	SourcePlatform   string  `json:"sourcePlatform"`
	EngagementRate   int     `json:"engagementRate"`
	SalesVelocity    int     `json:"salesVelocity"`
	SearchVolume     int     `json:"searchVolume"`
	GeographicSpread int     `json:"geographicSpread"`
	ImageURL         string  `json:"imageUrl"`
	AliexpressURL    string  `json:"aliexpressUrl"`
	CJDropshippingURL string `json:"cjdropshippingUrl"`
}

// ValidationEvidence records where and how a candidate was corroborated
// against an external wholesaler source.
type ValidationEvidence struct {
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Verified  bool      `json:"verified"`
	Method    string    `json:"method"` // "direct" or "derived"
	Timestamp time.Time `json:"timestamp"`
}

// ValidationResult is the external validator's verdict on one candidate.
type ValidationResult struct {
	Score    int                  `json:"score"` // 0-100
	Found    bool                 `json:"found"`
	Evidence []ValidationEvidence `json:"evidence"`
}

// QualityReport is the quality verifier's verdict on one candidate.
type QualityReport struct {
	IsValid      bool     `json:"isValid"`
	Issues       []string `json:"issues"`
	Repaired     bool     `json:"repaired"`
	QualityScore int      `json:"qualityScore"` // 0-100
}
