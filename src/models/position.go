package models

type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Position is a current holding. Quantity is signed: positive means long.
// Spot-balance-derived positions (crypto) are always long; Available and
// Locked subdivide Quantity for those venues.
type Position struct {
	Symbol        string       `json:"symbol"`
	Quantity      float64      `json:"quantity"`
	AveragePrice  float64      `json:"averagePrice"`
	MarketValue   float64      `json:"marketValue"`
	UnrealizedPnL float64      `json:"unrealizedPnL"`
	Side          PositionSide `json:"side"`
	Available     float64      `json:"available"`
	Locked        float64      `json:"locked"`
}

// SideFromQuantity derives the position side for venues without native
// shorting semantics.
func SideFromQuantity(quantity float64) PositionSide {
	if quantity < 0 {
		return PositionSideShort
	}

	return PositionSideLong
}
