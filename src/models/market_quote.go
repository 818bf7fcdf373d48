package models

import "time"

// MarketQuote is the normalized top-of-book snapshot for a symbol.
type MarketQuote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	BidSize   float64   `json:"bidSize"`
	AskSize   float64   `json:"askSize"`
	Timestamp time.Time `json:"timestamp"`
}
