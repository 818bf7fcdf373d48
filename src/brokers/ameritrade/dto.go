package ameritrade

import (
	"strconv"
	"strings"
	"time"

	"github.com/tradesignals/broker-gateway/src/models"
)

// orderTypeTable is the single source of truth for canonical → vendor order
// type mapping.
var orderTypeTable = map[models.OrderType]string{
	models.OrderTypeMarket:       "MARKET",
	models.OrderTypeLimit:        "LIMIT",
	models.OrderTypeStop:         "STOP",
	models.OrderTypeStopLimit:    "STOP_LIMIT",
	models.OrderTypeTrailingStop: "TRAILING_STOP",
}

var orderTypeFromVendor = map[string]models.OrderType{
	"MARKET":        models.OrderTypeMarket,
	"LIMIT":         models.OrderTypeLimit,
	"STOP":          models.OrderTypeStop,
	"STOP_LIMIT":    models.OrderTypeStopLimit,
	"TRAILING_STOP": models.OrderTypeTrailingStop,
}

var durationTable = map[models.TimeInForce]string{
	models.TimeInForceDay: "DAY",
	models.TimeInForceGTC: "GOOD_TILL_CANCEL",
	models.TimeInForceGTD: "GOOD_TILL_CANCEL",
	models.TimeInForceFOK: "FILL_OR_KILL",
}

var durationFromVendor = map[string]models.TimeInForce{
	"DAY":              models.TimeInForceDay,
	"GOOD_TILL_CANCEL": models.TimeInForceGTC,
	"FILL_OR_KILL":     models.TimeInForceFOK,
}

// statusFromVendor maps the brokerage's order states onto the canonical
// machine. filledQuantity refines WORKING into PARTIALLY_FILLED. Unmapped
// statuses become UNKNOWN so callers can poll again.
func statusFromVendor(status string, filledQuantity, quantity float64) models.OrderStatus {
	switch status {
	case "AWAITING_PARENT_ORDER", "AWAITING_CONDITION", "AWAITING_MANUAL_REVIEW", "PENDING_ACTIVATION", "AWAITING_UR_OUT":
		return models.OrderStatusPending
	case "ACCEPTED", "QUEUED", "PENDING_CANCEL", "PENDING_REPLACE":
		return models.OrderStatusOpen
	case "WORKING":
		if filledQuantity > 0 && filledQuantity < quantity {
			return models.OrderStatusPartiallyFilled
		}
		return models.OrderStatusOpen
	case "FILLED":
		return models.OrderStatusFilled
	case "CANCELED", "REPLACED":
		return models.OrderStatusCancelled
	case "REJECTED":
		return models.OrderStatusRejected
	case "EXPIRED":
		return models.OrderStatusExpired
	default:
		return models.OrderStatusUnknown
	}
}

type instrumentDTO struct {
	Symbol    string `json:"symbol"`
	AssetType string `json:"assetType"`
}

type orderLegDTO struct {
	Instruction string        `json:"instruction"`
	Quantity    float64       `json:"quantity"`
	Instrument  instrumentDTO `json:"instrument"`
}

// orderDTO is the multi-leg vendor order shape, used for both submission and
// reads. The adapter translates the flat canonical request into legs and
// back.
type orderDTO struct {
	OrderID            int64         `json:"orderId,omitempty"`
	OrderType          string        `json:"orderType"`
	Session            string        `json:"session"`
	Duration           string        `json:"duration"`
	OrderStrategyType  string        `json:"orderStrategyType"`
	Price              float64       `json:"price,omitempty"`
	StopPrice          float64       `json:"stopPrice,omitempty"`
	StopPriceLinkBasis string        `json:"stopPriceLinkBasis,omitempty"`
	StopPriceLinkType  string        `json:"stopPriceLinkType,omitempty"`
	StopPriceOffset    float64       `json:"stopPriceOffset,omitempty"`
	Status             string        `json:"status,omitempty"`
	Quantity           float64       `json:"quantity,omitempty"`
	FilledQuantity     float64       `json:"filledQuantity"`
	EnteredTime        string        `json:"enteredTime,omitempty"`
	CloseTime          string        `json:"closeTime,omitempty"`
	Tag                string        `json:"tag,omitempty"`
	OrderLegCollection []orderLegDTO `json:"orderLegCollection"`
}

// buildOrderDTO translates a validated canonical request into the vendor's
// leg structure.
func buildOrderDTO(req *models.OrderRequest, clientOrderID string) *orderDTO {
	instruction := "BUY"
	if req.Side == models.OrderSideSell {
		instruction = "SELL"
	}

	duration := durationTable[models.TimeInForceDay]
	if mapped, ok := durationTable[req.TimeInForce]; ok {
		duration = mapped
	}

	dto := &orderDTO{
		OrderType:         orderTypeTable[req.Type],
		Session:           "NORMAL",
		Duration:          duration,
		OrderStrategyType: "SINGLE",
		Tag:               clientOrderID,
		OrderLegCollection: []orderLegDTO{
			{
				Instruction: instruction,
				Quantity:    req.Quantity,
				Instrument: instrumentDTO{
					Symbol:    normalizeSymbol(req.Symbol),
					AssetType: "EQUITY",
				},
			},
		},
	}

	if req.LimitPrice != nil {
		dto.Price = *req.LimitPrice
	}

	if req.StopPrice != nil {
		dto.StopPrice = *req.StopPrice
	}

	if req.Type == models.OrderTypeTrailingStop && req.TrailPercent != nil {
		dto.StopPriceLinkBasis = "MARK"
		dto.StopPriceLinkType = "PERCENT"
		dto.StopPriceOffset = *req.TrailPercent
	}

	return dto
}

// ToNormalizedOrder flattens the leg structure back into the canonical form.
func (dto *orderDTO) ToNormalizedOrder() *models.NormalizedOrder {
	order := &models.NormalizedOrder{
		OrderID:        strconv.FormatInt(dto.OrderID, 10),
		ClientOrderID:  dto.Tag,
		Quantity:       dto.Quantity,
		FilledQuantity: dto.FilledQuantity,
		CreatedAt:      parseVendorTime(dto.EnteredTime),
		UpdatedAt:      parseVendorTime(firstNonEmpty(dto.CloseTime, dto.EnteredTime)),
	}

	if mapped, ok := orderTypeFromVendor[dto.OrderType]; ok {
		order.Type = mapped
	}

	if mapped, ok := durationFromVendor[dto.Duration]; ok {
		order.TimeInForce = mapped
	}

	if len(dto.OrderLegCollection) > 0 {
		leg := dto.OrderLegCollection[0]
		order.Symbol = leg.Instrument.Symbol
		if order.Quantity == 0 {
			order.Quantity = leg.Quantity
		}
		if strings.HasPrefix(leg.Instruction, "SELL") {
			order.Side = models.OrderSideSell
		} else {
			order.Side = models.OrderSideBuy
		}
	}

	order.Status = statusFromVendor(dto.Status, order.FilledQuantity, order.Quantity)

	if dto.Price > 0 {
		price := dto.Price
		order.LimitPrice = &price
	}

	if dto.StopPrice > 0 {
		stopPrice := dto.StopPrice
		order.StopPrice = &stopPrice
	}

	if dto.StopPriceOffset > 0 {
		trail := dto.StopPriceOffset
		order.TrailPercent = &trail
	}

	return order
}

type accountsDTO []struct {
	SecuritiesAccount securitiesAccountDTO `json:"securitiesAccount"`
}

type securitiesAccountDTO struct {
	AccountID       string        `json:"accountId"`
	Type            string        `json:"type"`
	IsDayTrader     bool          `json:"isDayTrader"`
	Positions       []positionDTO `json:"positions"`
	CurrentBalances struct {
		CashBalance            float64 `json:"cashBalance"`
		Equity                 float64 `json:"equity"`
		LiquidationValue       float64 `json:"liquidationValue"`
		BuyingPower            float64 `json:"buyingPower"`
		MarginBalance          float64 `json:"marginBalance"`
		MaintenanceRequirement float64 `json:"maintenanceRequirement"`
	} `json:"currentBalances"`
}

type positionDTO struct {
	ShortQuantity        float64       `json:"shortQuantity"`
	LongQuantity         float64       `json:"longQuantity"`
	AveragePrice         float64       `json:"averagePrice"`
	MarketValue          float64       `json:"marketValue"`
	CurrentDayProfitLoss float64       `json:"currentDayProfitLoss"`
	Instrument           instrumentDTO `json:"instrument"`
}

func (dto *positionDTO) ToPosition() *models.Position {
	quantity := dto.LongQuantity - dto.ShortQuantity

	return &models.Position{
		Symbol:        dto.Instrument.Symbol,
		Quantity:      quantity,
		AveragePrice:  dto.AveragePrice,
		MarketValue:   dto.MarketValue,
		UnrealizedPnL: dto.CurrentDayProfitLoss,
		Side:          models.SideFromQuantity(quantity),
		Available:     quantity,
	}
}

type quoteDTO struct {
	Symbol          string  `json:"symbol"`
	BidPrice        float64 `json:"bidPrice"`
	AskPrice        float64 `json:"askPrice"`
	LastPrice       float64 `json:"lastPrice"`
	BidSize         float64 `json:"bidSize"`
	AskSize         float64 `json:"askSize"`
	QuoteTimeInLong int64   `json:"quoteTimeInLong"`
}

func parseVendorTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	// The vendor reports ISO-8601 with a numeric offset, e.g.
	// 2024-03-15T10:30:00+0000
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}

	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
