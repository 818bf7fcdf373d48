package models

import "fmt"

// AccountBalance is a point-in-time snapshot of account funds.
type AccountBalance struct {
	Free        float64 `json:"free"`
	Total       float64 `json:"total"`
	BuyingPower float64 `json:"buyingPower"`
	MarginUsed  float64 `json:"marginUsed"`
	Currency    string  `json:"currency"`
}

func (b *AccountBalance) Check() error {
	if b.Free > b.Total {
		return fmt.Errorf("AccountBalance.Check: free %.2f exceeds total %.2f", b.Free, b.Total)
	}

	return nil
}
