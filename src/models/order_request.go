package models

import "time"

// OrderRequest is the canonical order submission shape. Adapters translate it
// into the vendor's native order structure.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	LimitPrice    *float64
	StopPrice     *float64
	TrailPercent  *float64
	TimeInForce   TimeInForce
	ClientOrderID string
}

// Validate applies the per-type precondition checks that must pass before any
// vendor call is made. Failures are ValidationErrors: the caller supplied a
// bad order, not the vendor.
func (r *OrderRequest) Validate(broker string) error {
	if r.Symbol == "" {
		return NewValidationError(broker, "symbol is required")
	}

	if r.Side != OrderSideBuy && r.Side != OrderSideSell {
		return NewValidationError(broker, "side must be BUY or SELL")
	}

	if r.Quantity <= 0 {
		return NewValidationError(broker, "quantity must be positive")
	}

	switch r.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if r.LimitPrice == nil {
			return NewValidationError(broker, "limitPrice is required for LIMIT orders")
		}
	case OrderTypeStop:
		if r.StopPrice == nil {
			return NewValidationError(broker, "stopPrice is required")
		}
	case OrderTypeStopLimit:
		if r.LimitPrice == nil {
			return NewValidationError(broker, "limitPrice is required for STOP_LIMIT orders")
		}
		if r.StopPrice == nil {
			return NewValidationError(broker, "stopPrice is required")
		}
	case OrderTypeTrailingStop:
		if r.TrailPercent != nil && *r.TrailPercent <= 0 {
			return NewValidationError(broker, "trailPercent must be positive")
		}
	default:
		return NewValidationError(broker, "unsupported order type: "+string(r.Type))
	}

	return nil
}

// RiskOrderRequest parameterizes SetStopLoss and SetTakeProfit. Quantity is
// signed: positive closes a long (SELL), negative closes a short (BUY).
type RiskOrderRequest struct {
	Symbol       string
	Quantity     float64
	Type         OrderType
	StopPrice    *float64
	LimitPrice   *float64
	TrailPercent *float64
	TimeInForce  TimeInForce
}

// DefaultTrailPercent is applied when a TRAILING_STOP request omits the trail.
const DefaultTrailPercent = 5.0

// CloseSide resolves the side-by-sign rule and returns the side together with
// the unsigned trade size.
func (r *RiskOrderRequest) CloseSide(broker string) (OrderSide, float64, error) {
	if r.Quantity > 0 {
		return OrderSideSell, r.Quantity, nil
	}

	if r.Quantity < 0 {
		return OrderSideBuy, -r.Quantity, nil
	}

	return "", 0, NewValidationError(broker, "quantity must be non-zero")
}

// OrderHistoryFilter narrows GetOrderHistory results. A nil filter means the
// most recent DefaultOrderHistoryLimit orders across all symbols.
type OrderHistoryFilter struct {
	Symbol    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

const DefaultOrderHistoryLimit = 100

func (f *OrderHistoryFilter) EffectiveLimit() int {
	if f == nil || f.Limit <= 0 {
		return DefaultOrderHistoryLimit
	}

	return f.Limit
}
