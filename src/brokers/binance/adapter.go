package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/tradesignals/broker-gateway/src/brokers"
	"github.com/tradesignals/broker-gateway/src/governor"
	"github.com/tradesignals/broker-gateway/src/models"
	"github.com/tradesignals/broker-gateway/src/utils"
	"github.com/tradesignals/broker-gateway/src/vault"
)

const BrokerKey = "binance"

const (
	exchangeInfoCacheKey = "exchangeInfo"
	feesCacheKeyPrefix   = "fees:"
)

// Adapter implements the broker contract for Binance spot, the api-key-secret
// family: stateless per-call authentication via request signing, synchronous
// balance and order calls, no token lifecycle.
type Adapter struct {
	vaultSvc  *vault.Vault
	governor  *governor.Governor
	userID    string
	baseURL   string
	client    *Client
	signer    *Signer
	testnet   bool
	connected bool

	// metaCache holds exchange info and fee schedules so support checks and
	// fee lookups don't burn the rate budget on every call.
	metaCache *cache.Cache
}

type Option func(*Adapter)

// WithBaseURL overrides the vendor endpoint, used to point at a fake vendor
// in tests.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = baseURL
	}
}

// NewAdapter constructs the adapter without doing any I/O. Connect
// establishes the session.
func NewAdapter(vaultSvc *vault.Vault, gov *governor.Governor, userID string, opts ...Option) *Adapter {
	a := &Adapter{
		vaultSvc:  vaultSvc,
		governor:  gov,
		userID:    userID,
		metaCache: cache.New(10*time.Minute, 15*time.Minute),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Connect decrypts the credential, gates sandbox use against the deployment
// environment, and verifies the key pair with an account call.
func (a *Adapter) Connect(ctx context.Context, cred *models.BrokerCredential) (*brokers.ConnectionResult, error) {
	if cred == nil || cred.Method != models.AuthMethodAPIKeySecret {
		return nil, models.NewConfigurationError(BrokerKey, "credential with api-key-secret auth is required")
	}

	a.testnet = cred.Environment == models.EnvironmentSandbox

	// Sandbox in a production deployment is a config error unless the
	// operator explicitly overrides: prevents accidental paper-trading in
	// prod. No vendor call is made when the gate trips.
	if a.testnet && utils.IsProductionEnv() && !utils.SandboxOverrideSet() {
		return nil, models.NewConfigurationError(BrokerKey, fmt.Sprintf("testnet connection refused in production; set %s=true to override", utils.SandboxOverrideEnv))
	}

	var secret models.APIKeySecret
	if err := a.vaultSvc.DecryptJSON(&cred.Payload, &secret); err != nil {
		return nil, err
	}

	if secret.APIKey == "" || secret.APISecret == "" {
		return nil, models.NewConfigurationError(BrokerKey, "apiKey and apiSecret are required")
	}

	baseURL := a.baseURL
	if baseURL == "" {
		baseURL = liveBaseURL
		if a.testnet {
			baseURL = testnetBaseURL
		}
	}

	a.signer = NewSigner(secret.APIKey, secret.APISecret)
	a.client = NewClient(baseURL, a.signer)

	if err := a.admit(); err != nil {
		return nil, err
	}

	if _, err := a.fetchAccount(ctx); err != nil {
		a.signer.Wipe()
		a.signer = nil
		a.client = nil

		return nil, err
	}

	a.connected = true

	log.WithFields(log.Fields{
		"broker":  BrokerKey,
		"userId":  a.userID,
		"testnet": a.testnet,
	}).Info("broker connected")

	environment := models.EnvironmentLive
	if a.testnet {
		environment = models.EnvironmentSandbox
	}

	return &brokers.ConnectionResult{
		Success:     true,
		AccountID:   "spot",
		Environment: environment,
	}, nil
}

// Disconnect is idempotent: calling it when already disconnected is a no-op.
func (a *Adapter) Disconnect(ctx context.Context) error {
	if !a.connected {
		return nil
	}

	a.signer.Wipe()
	a.signer = nil
	a.client = nil
	a.connected = false
	a.metaCache.Flush()
	a.governor.Reset(a.userID, BrokerKey)

	log.WithFields(log.Fields{"broker": BrokerKey, "userId": a.userID}).Info("broker disconnected")

	return nil
}

func (a *Adapter) CreateOrder(ctx context.Context, req *models.OrderRequest) (*models.NormalizedOrder, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}

	if err := req.Validate(BrokerKey); err != nil {
		return nil, err
	}

	if _, ok := orderTypeTable[req.Type]; !ok {
		return nil, models.NewValidationError(BrokerKey, "unsupported order type: "+string(req.Type))
	}

	if req.Type == models.OrderTypeTrailingStop && req.TrailPercent == nil {
		trail := models.DefaultTrailPercent
		req.TrailPercent = &trail
	}

	if err := a.admit(); err != nil {
		return nil, err
	}

	params := a.orderParams(req)

	body, err := a.client.do(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, markUncertainTimeout(err)
	}

	var dto orderDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("binance.CreateOrder: failed to parse response: %w", err)
	}

	order, err := dto.ToNormalizedOrder()
	if err != nil {
		return nil, fmt.Errorf("binance.CreateOrder: %w", err)
	}

	if order.Type == "" {
		order.Type = req.Type
	}
	if req.TrailPercent != nil {
		order.TrailPercent = req.TrailPercent
	}

	return order, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string, symbol string) (bool, error) {
	if err := a.ensureConnected(); err != nil {
		return false, err
	}

	if err := a.admit(); err != nil {
		return false, err
	}

	params := url.Values{}
	params.Set("symbol", normalizeSymbol(symbol))
	params.Set("orderId", orderID)

	body, err := a.client.do(ctx, http.MethodDelete, "/api/v3/order", params, true)
	if err != nil {
		return false, err
	}

	var dto orderDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return false, fmt.Errorf("binance.CancelOrder: failed to parse response: %w", err)
	}

	return statusFromVendor(dto.Status) == models.OrderStatusCancelled, nil
}

func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string, symbol string) (*models.NormalizedOrder, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}

	if err := a.admit(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", normalizeSymbol(symbol))
	params.Set("orderId", orderID)

	body, err := a.client.do(ctx, http.MethodGet, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var dto orderDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("binance.GetOrderStatus: failed to parse response: %w", err)
	}

	order, err := dto.ToNormalizedOrder()
	if err != nil {
		return nil, fmt.Errorf("binance.GetOrderStatus: %w", err)
	}

	return order, nil
}

// GetOrderHistory fetches orders for a symbol, most recent first. Binance's
// history endpoint has no upper-bound parameter, so the endDate filter is
// applied client-side.
func (a *Adapter) GetOrderHistory(ctx context.Context, filter *models.OrderHistoryFilter) ([]*models.NormalizedOrder, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}

	if filter == nil || filter.Symbol == "" {
		return nil, models.NewValidationError(BrokerKey, "symbol is required for order history")
	}

	if err := a.admit(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", normalizeSymbol(filter.Symbol))
	if filter.StartDate != nil {
		params.Set("startTime", strconv.FormatInt(filter.StartDate.UnixMilli(), 10))
	}

	body, err := a.client.do(ctx, http.MethodGet, "/api/v3/allOrders", params, true)
	if err != nil {
		return nil, err
	}

	var dtos []orderDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("binance.GetOrderHistory: failed to parse response: %w", err)
	}

	orders := make([]*models.NormalizedOrder, 0, len(dtos))
	for _, dto := range dtos {
		order, err := dto.ToNormalizedOrder()
		if err != nil {
			return nil, fmt.Errorf("binance.GetOrderHistory: %w", err)
		}

		orders = append(orders, order)
	}

	return brokers.FilterOrderHistory(orders, filter), nil
}

// SetStopLoss places the protective order that closes an existing position.
// Quantity sign selects the side: positive closes a long with a SELL,
// negative closes a short with a BUY.
func (a *Adapter) SetStopLoss(ctx context.Context, req *models.RiskOrderRequest) (*models.NormalizedOrder, error) {
	side, quantity, err := req.CloseSide(BrokerKey)
	if err != nil {
		return nil, err
	}

	orderType := req.Type
	if orderType == "" {
		orderType = models.OrderTypeStop
	}

	orderReq := &models.OrderRequest{
		Symbol:      req.Symbol,
		Side:        side,
		Type:        orderType,
		Quantity:    quantity,
		StopPrice:   req.StopPrice,
		LimitPrice:  req.LimitPrice,
		TimeInForce: req.TimeInForce,
	}

	switch orderType {
	case models.OrderTypeStop, models.OrderTypeStopLimit:
		if req.StopPrice == nil {
			return nil, models.NewValidationError(BrokerKey, "stopPrice is required")
		}
	case models.OrderTypeTrailingStop:
		trail := models.DefaultTrailPercent
		if req.TrailPercent != nil {
			trail = *req.TrailPercent
		}
		orderReq.TrailPercent = &trail
	default:
		return nil, models.NewValidationError(BrokerKey, "stop loss requires STOP, STOP_LIMIT or TRAILING_STOP type")
	}

	return a.CreateOrder(ctx, orderReq)
}

// SetTakeProfit places a LIMIT order at the target price, side chosen by the
// quantity sign rule.
func (a *Adapter) SetTakeProfit(ctx context.Context, req *models.RiskOrderRequest) (*models.NormalizedOrder, error) {
	if req.LimitPrice == nil {
		return nil, models.NewValidationError(BrokerKey, "limitPrice is required")
	}

	side, quantity, err := req.CloseSide(BrokerKey)
	if err != nil {
		return nil, err
	}

	timeInForce := req.TimeInForce
	if timeInForce == "" {
		timeInForce = models.TimeInForceGTC
	}

	return a.CreateOrder(ctx, &models.OrderRequest{
		Symbol:      req.Symbol,
		Side:        side,
		Type:        models.OrderTypeLimit,
		Quantity:    quantity,
		LimitPrice:  req.LimitPrice,
		TimeInForce: timeInForce,
	})
}

// GetPositions derives positions from non-zero spot balances. Spot holdings
// are always long; free and locked subdivide the quantity.
func (a *Adapter) GetPositions(ctx context.Context) ([]*models.Position, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}

	if err := a.admit(); err != nil {
		return nil, err
	}

	account, err := a.fetchAccount(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]*models.Position, 0)
	for _, balance := range account.Balances {
		free, freeErr := parseVendorFloat(balance.Free)
		locked, lockedErr := parseVendorFloat(balance.Locked)
		if freeErr != nil || lockedErr != nil {
			continue
		}

		total := free + locked
		if total == 0 {
			continue
		}

		positions = append(positions, &models.Position{
			Symbol:    balance.Asset,
			Quantity:  total,
			Side:      models.PositionSideLong,
			Available: free,
			Locked:    locked,
		})
	}

	return positions, nil
}

func (a *Adapter) GetBalance(ctx context.Context, currency string) (*models.AccountBalance, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}

	if err := a.admit(); err != nil {
		return nil, err
	}

	account, err := a.fetchAccount(ctx)
	if err != nil {
		return nil, err
	}

	if currency == "" {
		currency = "USDT"
	}

	balance := &models.AccountBalance{Currency: currency}
	for _, b := range account.Balances {
		if b.Asset != currency {
			continue
		}

		free, freeErr := parseVendorFloat(b.Free)
		locked, lockedErr := parseVendorFloat(b.Locked)
		if freeErr != nil || lockedErr != nil {
			return nil, fmt.Errorf("binance.GetBalance: failed to parse balance for %s", currency)
		}

		balance.Free = free
		balance.Total = free + locked
		balance.BuyingPower = free
		break
	}

	return balance, nil
}

func (a *Adapter) GetMarketPrice(ctx context.Context, symbol string) (*models.MarketQuote, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}

	if err := a.admit(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", normalizeSymbol(symbol))

	body, err := a.client.do(ctx, http.MethodGet, "/api/v3/ticker/24hr", params, false)
	if err != nil {
		return nil, err
	}

	var dto tickerDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("binance.GetMarketPrice: failed to parse response: %w", err)
	}

	bid, _ := parseVendorFloat(dto.BidPrice)
	ask, _ := parseVendorFloat(dto.AskPrice)
	last, _ := parseVendorFloat(dto.LastPrice)
	bidSize, _ := parseVendorFloat(dto.BidQty)
	askSize, _ := parseVendorFloat(dto.AskQty)

	return &models.MarketQuote{
		Symbol:    denormalizeSymbol(dto.Symbol),
		Bid:       bid,
		Ask:       ask,
		Last:      last,
		BidSize:   bidSize,
		AskSize:   askSize,
		Timestamp: msToTime(dto.CloseTime),
	}, nil
}

// IsSymbolSupported is a predicate, not a data fetch: it returns false on any
// resolution failure instead of propagating errors.
func (a *Adapter) IsSymbolSupported(ctx context.Context, symbol string) bool {
	if a.client == nil {
		return false
	}

	info, err := a.exchangeInfo(ctx)
	if err != nil {
		log.WithFields(log.Fields{"broker": BrokerKey, "symbol": symbol}).Warnf("symbol support check degraded to false: %v", err)
		return false
	}

	target := normalizeSymbol(symbol)
	for _, s := range info.Symbols {
		if s.Symbol == target {
			return s.Status == "TRADING"
		}
	}

	return false
}

// GetFees returns the account's live commission rates when available and
// falls back to the published default schedule otherwise. Fee lookups never
// block trading decisions.
func (a *Adapter) GetFees(ctx context.Context, symbol string) *models.FeeSchedule {
	fallback := &models.FeeSchedule{
		MakerRate: 0.001,
		TakerRate: 0.001,
		Currency:  "quote",
		Notes:     "default spot schedule; BNB discounts not applied",
	}

	if a.client == nil || !a.connected {
		return fallback
	}

	cacheKey := feesCacheKeyPrefix + normalizeSymbol(symbol)
	if cached, found := a.metaCache.Get(cacheKey); found {
		return cached.(*models.FeeSchedule)
	}

	if err := a.admit(); err != nil {
		return fallback
	}

	account, err := a.fetchAccount(ctx)
	if err != nil {
		log.WithFields(log.Fields{"broker": BrokerKey}).Warnf("fee lookup degraded to fallback: %v", err)
		return fallback
	}

	maker, makerErr := parseVendorFloat(account.CommissionRates.Maker)
	taker, takerErr := parseVendorFloat(account.CommissionRates.Taker)
	if makerErr != nil || takerErr != nil || (maker == 0 && taker == 0) {
		return fallback
	}

	fees := &models.FeeSchedule{
		MakerRate: maker,
		TakerRate: taker,
		Currency:  "quote",
	}

	a.metaCache.Set(cacheKey, fees, cache.DefaultExpiration)

	return fees
}

func (a *Adapter) GetBrokerInfo() *models.BrokerInfo {
	return &models.BrokerInfo{
		Name:            "Binance",
		Key:             BrokerKey,
		Type:            models.BrokerTypeCryptoExchange,
		IsTestnet:       a.testnet,
		IsAuthenticated: a.connected,
		SupportsCrypto:  true,
		Features: models.BrokerFeatures{
			TrailingStops:        true,
			OCO:                  true,
			FractionalQuantities: true,
		},
	}
}

func (a *Adapter) ensureConnected() error {
	if !a.connected || a.client == nil {
		return models.NewConfigurationError(BrokerKey, "adapter is not connected; call Connect first")
	}

	return nil
}

func (a *Adapter) admit() error {
	return a.governor.Admit(a.userID, BrokerKey)
}

func (a *Adapter) fetchAccount(ctx context.Context) (*accountDTO, error) {
	body, err := a.client.do(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return nil, err
	}

	var dto accountDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("binance.fetchAccount: failed to parse response: %w", err)
	}

	return &dto, nil
}

// exchangeInfo fetches the exchange's symbol listing, cached so repeated
// support checks don't consume the rate budget.
func (a *Adapter) exchangeInfo(ctx context.Context) (*exchangeInfoDTO, error) {
	if cached, found := a.metaCache.Get(exchangeInfoCacheKey); found {
		return cached.(*exchangeInfoDTO), nil
	}

	if err := a.admit(); err != nil {
		return nil, err
	}

	body, err := a.client.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}

	var dto exchangeInfoDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("binance.exchangeInfo: failed to parse response: %w", err)
	}

	a.metaCache.Set(exchangeInfoCacheKey, &dto, cache.DefaultExpiration)

	return &dto, nil
}

// orderParams translates the canonical request into vendor parameters using
// the order-type table. Trailing stops use Binance's trailingDelta, expressed
// in basis points.
func (a *Adapter) orderParams(req *models.OrderRequest) url.Values {
	params := url.Values{}
	params.Set("symbol", normalizeSymbol(req.Symbol))
	params.Set("side", string(req.Side))
	params.Set("type", orderTypeTable[req.Type])
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))

	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}
	params.Set("newClientOrderId", clientOrderID)

	if req.LimitPrice != nil {
		params.Set("price", strconv.FormatFloat(*req.LimitPrice, 'f', -1, 64))
	}

	if req.StopPrice != nil {
		params.Set("stopPrice", strconv.FormatFloat(*req.StopPrice, 'f', -1, 64))
	}

	if req.Type == models.OrderTypeTrailingStop && req.TrailPercent != nil {
		params.Set("trailingDelta", strconv.Itoa(int(*req.TrailPercent*100)))
	}

	if req.Type == models.OrderTypeLimit || req.Type == models.OrderTypeStopLimit {
		timeInForce := req.TimeInForce
		if timeInForce == "" {
			timeInForce = models.TimeInForceGTC
		}
		if vendorTIF, ok := timeInForceTable[timeInForce]; ok {
			params.Set("timeInForce", vendorTIF)
		} else {
			params.Set("timeInForce", "GTC")
		}
	}

	return params
}

// markUncertainTimeout flags a timed-out state-changing call: the vendor may
// have accepted the order despite the client-side timeout, so callers must
// check order history before retrying.
func markUncertainTimeout(err error) error {
	var brokerErr *models.BrokerError
	if errors.As(err, &brokerErr) && brokerErr.Kind == models.ErrorKindTimeout {
		brokerErr.Uncertain = true
	}

	return err
}
