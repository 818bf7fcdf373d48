package models

// FeeSchedule describes trading costs for a venue or symbol. Every adapter
// carries a hardcoded fallback so fee lookups never fail outright.
type FeeSchedule struct {
	MakerRate  float64 `json:"makerRate"`
	TakerRate  float64 `json:"takerRate"`
	Commission float64 `json:"commission"`
	Currency   string  `json:"currency"`
	Notes      string  `json:"notes,omitempty"`
}
