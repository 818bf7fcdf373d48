package models

type BrokerType string

const (
	BrokerTypeCryptoExchange BrokerType = "crypto_exchange"
	BrokerTypeStockBrokerage BrokerType = "stock_brokerage"
)

type BrokerFeatures struct {
	TrailingStops        bool `json:"trailingStops"`
	OCO                  bool `json:"oco"`
	FractionalQuantities bool `json:"fractionalQuantities"`
	ExtendedHours        bool `json:"extendedHours"`
}

type BrokerInfo struct {
	Name            string         `json:"name"`
	Key             string         `json:"key"`
	Type            BrokerType     `json:"type"`
	IsTestnet       bool           `json:"isTestnet"`
	IsAuthenticated bool           `json:"isAuthenticated"`
	SupportsCrypto  bool           `json:"supportsCrypto"`
	SupportsStocks  bool           `json:"supportsStocks"`
	SupportsOptions bool           `json:"supportsOptions"`
	SupportsFutures bool           `json:"supportsFutures"`
	Features        BrokerFeatures `json:"features"`
}
