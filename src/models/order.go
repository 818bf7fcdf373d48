package models

import (
	"fmt"
	"time"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderTypeMarket       OrderType = "MARKET"
	OrderTypeLimit        OrderType = "LIMIT"
	OrderTypeStop         OrderType = "STOP"
	OrderTypeStopLimit    OrderType = "STOP_LIMIT"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP"
)

type TimeInForce string

const (
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceGTD TimeInForce = "GTD"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

type Fee struct {
	Cost     float64 `json:"cost"`
	Currency string  `json:"currency"`
}

// NormalizedOrder is the broker-agnostic view of an order returned by every
// adapter, regardless of the vendor's native shape.
type NormalizedOrder struct {
	OrderID        string      `json:"orderId"`
	ClientOrderID  string      `json:"clientOrderId"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Quantity       float64     `json:"quantity"`
	FilledQuantity float64     `json:"filledQuantity"`
	LimitPrice     *float64    `json:"limitPrice,omitempty"`
	StopPrice      *float64    `json:"stopPrice,omitempty"`
	TrailPercent   *float64    `json:"trailPercent,omitempty"`
	TimeInForce    TimeInForce `json:"timeInForce"`
	Status         OrderStatus `json:"status"`
	ExecutedPrice  *float64    `json:"executedPrice,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	Fee            *Fee        `json:"fee,omitempty"`
}

func (o *NormalizedOrder) String() string {
	return fmt.Sprintf("ID (%s), Symbol: %s, Side: %s, Type: %s, Status: %s, Qty: %.8f, Filled: %.8f", o.OrderID, o.Symbol, o.Side, o.Type, o.Status, o.Quantity, o.FilledQuantity)
}

// CheckFillInvariant reports whether filled quantity is consistent with the
// order status: filled never exceeds quantity, and FILLED means fully filled.
func (o *NormalizedOrder) CheckFillInvariant() error {
	if o.FilledQuantity > o.Quantity {
		return fmt.Errorf("NormalizedOrder.CheckFillInvariant: filled quantity %.8f exceeds quantity %.8f", o.FilledQuantity, o.Quantity)
	}

	if o.Status == OrderStatusFilled && o.FilledQuantity != o.Quantity {
		return fmt.Errorf("NormalizedOrder.CheckFillInvariant: status is FILLED but filled quantity %.8f != quantity %.8f", o.FilledQuantity, o.Quantity)
	}

	return nil
}
