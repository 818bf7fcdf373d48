package binance

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tradesignals/broker-gateway/src/models"
)

// orderTypeTable is the single source of truth for canonical → vendor order
// type mapping. Adding an order type means updating exactly this table (and
// its reverse below).
var orderTypeTable = map[models.OrderType]string{
	models.OrderTypeMarket:       "MARKET",
	models.OrderTypeLimit:        "LIMIT",
	models.OrderTypeStop:         "STOP_LOSS",
	models.OrderTypeStopLimit:    "STOP_LOSS_LIMIT",
	models.OrderTypeTrailingStop: "STOP_LOSS",
}

var orderTypeFromVendor = map[string]models.OrderType{
	"MARKET":            models.OrderTypeMarket,
	"LIMIT":             models.OrderTypeLimit,
	"LIMIT_MAKER":       models.OrderTypeLimit,
	"STOP_LOSS":         models.OrderTypeStop,
	"STOP_LOSS_LIMIT":   models.OrderTypeStopLimit,
	"TAKE_PROFIT":       models.OrderTypeStop,
	"TAKE_PROFIT_LIMIT": models.OrderTypeStopLimit,
}

var timeInForceTable = map[models.TimeInForce]string{
	models.TimeInForceGTC: "GTC",
	models.TimeInForceIOC: "IOC",
	models.TimeInForceFOK: "FOK",
}

// statusFromVendor maps Binance order statuses onto the canonical state
// machine. Anything unmapped becomes UNKNOWN so callers can poll again.
func statusFromVendor(status string) models.OrderStatus {
	switch status {
	case "NEW":
		return models.OrderStatusOpen
	case "PARTIALLY_FILLED":
		return models.OrderStatusPartiallyFilled
	case "FILLED":
		return models.OrderStatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return models.OrderStatusCancelled
	case "REJECTED":
		return models.OrderStatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return models.OrderStatusExpired
	default:
		return models.OrderStatusUnknown
	}
}

type errorDTO struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type orderDTO struct {
	OrderID             int64     `json:"orderId"`
	ClientOrderID       string    `json:"clientOrderId"`
	Symbol              string    `json:"symbol"`
	Price               string    `json:"price"`
	OrigQty             string    `json:"origQty"`
	ExecutedQty         string    `json:"executedQty"`
	CummulativeQuoteQty string    `json:"cummulativeQuoteQty"`
	Status              string    `json:"status"`
	TimeInForce         string    `json:"timeInForce"`
	Type                string    `json:"type"`
	Side                string    `json:"side"`
	StopPrice           string    `json:"stopPrice"`
	Time                int64     `json:"time"`
	UpdateTime          int64     `json:"updateTime"`
	TransactTime        int64     `json:"transactTime"`
	Fills               []fillDTO `json:"fills"`
}

type fillDTO struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

type balanceDTO struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type accountDTO struct {
	Balances        []balanceDTO `json:"balances"`
	CommissionRates struct {
		Maker string `json:"maker"`
		Taker string `json:"taker"`
	} `json:"commissionRates"`
}

type tickerDTO struct {
	Symbol    string `json:"symbol"`
	BidPrice  string `json:"bidPrice"`
	BidQty    string `json:"bidQty"`
	AskPrice  string `json:"askPrice"`
	AskQty    string `json:"askQty"`
	LastPrice string `json:"lastPrice"`
	CloseTime int64  `json:"closeTime"`
}

type exchangeInfoDTO struct {
	Symbols []symbolInfoDTO `json:"symbols"`
}

type symbolInfoDTO struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// ToNormalizedOrder converts the vendor order shape into the canonical form,
// reversing the symbol normalization on the way out.
func (dto *orderDTO) ToNormalizedOrder() (*models.NormalizedOrder, error) {
	quantity, err := parseVendorFloat(dto.OrigQty)
	if err != nil {
		return nil, fmt.Errorf("orderDTO.ToNormalizedOrder: failed to parse origQty: %w", err)
	}

	filled, err := parseVendorFloat(dto.ExecutedQty)
	if err != nil {
		return nil, fmt.Errorf("orderDTO.ToNormalizedOrder: failed to parse executedQty: %w", err)
	}

	order := &models.NormalizedOrder{
		OrderID:        strconv.FormatInt(dto.OrderID, 10),
		ClientOrderID:  dto.ClientOrderID,
		Symbol:         denormalizeSymbol(dto.Symbol),
		Side:           models.OrderSide(dto.Side),
		Quantity:       quantity,
		FilledQuantity: filled,
		Status:         statusFromVendor(dto.Status),
		CreatedAt:      msToTime(firstNonZero(dto.Time, dto.TransactTime)),
		UpdatedAt:      msToTime(firstNonZero(dto.UpdateTime, dto.TransactTime, dto.Time)),
	}

	if mapped, ok := orderTypeFromVendor[dto.Type]; ok {
		order.Type = mapped
	}

	switch dto.TimeInForce {
	case "GTC":
		order.TimeInForce = models.TimeInForceGTC
	case "IOC":
		order.TimeInForce = models.TimeInForceIOC
	case "FOK":
		order.TimeInForce = models.TimeInForceFOK
	}

	if price, err := parseVendorFloat(dto.Price); err == nil && price > 0 {
		order.LimitPrice = &price
	}

	if stopPrice, err := parseVendorFloat(dto.StopPrice); err == nil && stopPrice > 0 {
		order.StopPrice = &stopPrice
	}

	if executed := dto.executedPrice(); executed > 0 {
		order.ExecutedPrice = &executed
	}

	if fee := dto.totalFee(); fee != nil {
		order.Fee = fee
	}

	return order, nil
}

// executedPrice derives the average fill price from fills when present,
// otherwise from the cumulative quote quantity.
func (dto *orderDTO) executedPrice() float64 {
	filled, err := parseVendorFloat(dto.ExecutedQty)
	if err != nil || filled == 0 {
		return 0
	}

	if len(dto.Fills) > 0 {
		var notional float64
		for _, fill := range dto.Fills {
			price, priceErr := parseVendorFloat(fill.Price)
			qty, qtyErr := parseVendorFloat(fill.Qty)
			if priceErr != nil || qtyErr != nil {
				continue
			}
			notional += price * qty
		}
		return notional / filled
	}

	quoteQty, err := parseVendorFloat(dto.CummulativeQuoteQty)
	if err != nil || quoteQty == 0 {
		return 0
	}

	return quoteQty / filled
}

func (dto *orderDTO) totalFee() *models.Fee {
	if len(dto.Fills) == 0 {
		return nil
	}

	fee := &models.Fee{}
	for _, fill := range dto.Fills {
		cost, err := parseVendorFloat(fill.Commission)
		if err != nil {
			continue
		}
		fee.Cost += cost
		fee.Currency = fill.CommissionAsset
	}

	return fee
}

func parseVendorFloat(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}

	return strconv.ParseFloat(raw, 64)
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms).UTC()
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}

	return 0
}
