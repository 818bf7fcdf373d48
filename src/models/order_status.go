package models

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"

	// OrderStatusUnknown is returned when a vendor reports a status we have no
	// mapping for. Callers should poll again rather than treat it as an error.
	OrderStatusUnknown OrderStatus = "UNKNOWN"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusOpen, OrderStatusRejected},
	OrderStatusOpen:            {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired},
	OrderStatusPartiallyFilled: {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled},
	OrderStatusFilled:          {},
	OrderStatusCancelled:       {},
	OrderStatusRejected:        {},
	OrderStatusExpired:         {},
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

func (s OrderStatus) IsActive() bool {
	switch s {
	case OrderStatusPending, OrderStatusOpen, OrderStatusPartiallyFilled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the canonical state machine permits moving
// from s to next. UNKNOWN is reachable from anywhere and transitions anywhere,
// since it only means we could not read the vendor's answer.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == OrderStatusUnknown || next == OrderStatusUnknown {
		return true
	}

	allowed, ok := orderStatusTransitions[s]
	if !ok {
		return false
	}

	for _, candidate := range allowed {
		if candidate == next {
			return true
		}
	}

	return false
}
