package brokers

import (
	"context"

	"github.com/tradesignals/broker-gateway/src/models"
)

// Account is one tradeable account discovered on connect. Multi-account
// venues return the full list; selection is explicit, never implicit.
type Account struct {
	ID        string `json:"id"`
	Type      string `json:"type,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
}

type ConnectionResult struct {
	Success     bool               `json:"success"`
	AccountID   string             `json:"accountId,omitempty"`
	Accounts    []Account          `json:"accounts,omitempty"`
	Environment models.Environment `json:"environment"`
}

// BrokerAdapter is the uniform contract every venue integration implements.
// Construction does no I/O; Connect establishes the session. All operations
// surface failures as *models.BrokerError kinds, and every vendor call is
// bounded by the context deadline or the adapter's own client timeout.
//
// IsSymbolSupported and GetFees are deliberately infallible: they gate
// optional UX rather than money movement, so they degrade to false / a
// fallback schedule instead of propagating vendor errors.
type BrokerAdapter interface {
	Connect(ctx context.Context, cred *models.BrokerCredential) (*ConnectionResult, error)
	Disconnect(ctx context.Context) error

	CreateOrder(ctx context.Context, req *models.OrderRequest) (*models.NormalizedOrder, error)
	CancelOrder(ctx context.Context, orderID string, symbol string) (bool, error)
	GetOrderStatus(ctx context.Context, orderID string, symbol string) (*models.NormalizedOrder, error)
	GetOrderHistory(ctx context.Context, filter *models.OrderHistoryFilter) ([]*models.NormalizedOrder, error)

	SetStopLoss(ctx context.Context, req *models.RiskOrderRequest) (*models.NormalizedOrder, error)
	SetTakeProfit(ctx context.Context, req *models.RiskOrderRequest) (*models.NormalizedOrder, error)

	GetPositions(ctx context.Context) ([]*models.Position, error)
	GetBalance(ctx context.Context, currency string) (*models.AccountBalance, error)
	GetMarketPrice(ctx context.Context, symbol string) (*models.MarketQuote, error)

	IsSymbolSupported(ctx context.Context, symbol string) bool
	GetFees(ctx context.Context, symbol string) *models.FeeSchedule
	GetBrokerInfo() *models.BrokerInfo
}
