package ameritrade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tradesignals/broker-gateway/src/brokers"
	"github.com/tradesignals/broker-gateway/src/governor"
	"github.com/tradesignals/broker-gateway/src/models"
	"github.com/tradesignals/broker-gateway/src/utils"
	"github.com/tradesignals/broker-gateway/src/vault"
)

const BrokerKey = "ameritrade"

const (
	liveBaseURL     = "https://api.tdameritrade.com"
	defaultTokenURL = "https://api.tdameritrade.com/v1/oauth2/token"
)

// ConnectionState tracks the OAuth connection lifecycle.
type ConnectionState string

const (
	StateDisconnected         ConnectionState = "DISCONNECTED"
	StateAuthenticating       ConnectionState = "AUTHENTICATING"
	StateAuthenticated        ConnectionState = "AUTHENTICATED"
	StateTokenExpired         ConnectionState = "TOKEN_EXPIRED"
	StateRefreshing           ConnectionState = "REFRESHING"
	StateAuthenticationFailed ConnectionState = "AUTHENTICATION_FAILED"
)

// Adapter implements the broker contract for a TD Ameritrade style brokerage,
// the oauth2 family: authorization-code tokens with refresh-before-expiry,
// account discovery on connect, and multi-leg order construction.
type Adapter struct {
	vaultSvc *vault.Vault
	governor *governor.Governor
	userID   string

	baseURL    string
	tokenURL   string
	httpClient *http.Client

	mu        sync.Mutex
	state     ConnectionState
	tokens    *tokenManager
	accountID string
	accounts  []brokers.Account

	// defaultToFirst opts into first-account selection on multi-account
	// logins. Off by default: the account list is exposed and selection is
	// explicit.
	defaultToFirst bool
}

type Option func(*Adapter)

// WithBaseURL points the adapter at a fake vendor in tests.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = baseURL
	}
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(a *Adapter) {
		a.tokenURL = tokenURL
	}
}

// WithDefaultToFirstAccount enables first-account selection when connect
// discovers several accounts.
func WithDefaultToFirstAccount() Option {
	return func(a *Adapter) {
		a.defaultToFirst = true
	}
}

// NewAdapter constructs the adapter without doing any I/O.
func NewAdapter(vaultSvc *vault.Vault, gov *governor.Governor, userID string, opts ...Option) *Adapter {
	a := &Adapter{
		vaultSvc: vaultSvc,
		governor: gov,
		userID:   userID,
		baseURL:  liveBaseURL,
		tokenURL: defaultTokenURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		state: StateDisconnected,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Connect decrypts the OAuth secret, enumerates the user's accounts, and
// resolves account selection. With several accounts and no opt-in to
// first-account defaulting, the result carries the full list and an empty
// AccountID; the caller must call SelectAccount before trading.
func (a *Adapter) Connect(ctx context.Context, cred *models.BrokerCredential) (*brokers.ConnectionResult, error) {
	if cred == nil || cred.Method != models.AuthMethodOAuth2 {
		return nil, models.NewConfigurationError(BrokerKey, "credential with oauth2 auth is required")
	}

	if cred.Environment == models.EnvironmentSandbox && utils.IsProductionEnv() && !utils.SandboxOverrideSet() {
		return nil, models.NewConfigurationError(BrokerKey, fmt.Sprintf("sandbox connection refused in production; set %s=true to override", utils.SandboxOverrideEnv))
	}

	var secret models.OAuthSecret
	if err := a.vaultSvc.DecryptJSON(&cred.Payload, &secret); err != nil {
		return nil, err
	}

	if secret.RefreshToken == "" || secret.ClientID == "" {
		return nil, models.NewConfigurationError(BrokerKey, "refreshToken and clientId are required")
	}

	var expiresAt time.Time
	if cred.OAuth != nil {
		expiresAt = cred.OAuth.ExpiresAt
	}

	a.setState(StateAuthenticating)
	a.tokens = newTokenManager(&secret, a.tokenURL, expiresAt)
	a.tokens.client = a.httpClient

	body, err := a.call(ctx, http.MethodGet, "/v1/accounts", nil, nil)
	if err != nil {
		a.setState(StateAuthenticationFailed)
		return nil, err
	}

	var dtos accountsDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		a.setState(StateAuthenticationFailed)
		return nil, fmt.Errorf("ameritrade.Connect: failed to parse accounts: %w", err)
	}

	if len(dtos) == 0 {
		a.setState(StateAuthenticationFailed)
		return nil, models.NewAuthenticationError(BrokerKey, "no accounts available for this login")
	}

	accounts := make([]brokers.Account, 0, len(dtos))
	for i, dto := range dtos {
		accounts = append(accounts, brokers.Account{
			ID:        dto.SecuritiesAccount.AccountID,
			Type:      dto.SecuritiesAccount.Type,
			IsPrimary: i == 0,
		})
	}

	a.mu.Lock()
	a.accounts = accounts
	a.accountID = ""
	if len(accounts) == 1 || a.defaultToFirst {
		a.accountID = accounts[0].ID
	}
	a.state = StateAuthenticated
	accountID := a.accountID
	a.mu.Unlock()

	log.WithFields(log.Fields{
		"broker":   BrokerKey,
		"userId":   a.userID,
		"accounts": len(accounts),
	}).Info("broker connected")

	return &brokers.ConnectionResult{
		Success:     true,
		AccountID:   accountID,
		Accounts:    accounts,
		Environment: cred.Environment,
	}, nil
}

// SelectAccount picks the trading account after a multi-account connect.
func (a *Adapter) SelectAccount(accountID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, account := range a.accounts {
		if account.ID == accountID {
			a.accountID = accountID
			return nil
		}
	}

	return models.NewValidationError(BrokerKey, "account "+accountID+" is not one of the connected login's accounts")
}

// Disconnect is idempotent and leaves the adapter in DISCONNECTED regardless
// of prior state.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	alreadyDisconnected := a.state == StateDisconnected
	a.state = StateDisconnected
	a.tokens = nil
	a.accountID = ""
	a.accounts = nil
	a.mu.Unlock()

	if !alreadyDisconnected {
		a.governor.Reset(a.userID, BrokerKey)
		log.WithFields(log.Fields{"broker": BrokerKey, "userId": a.userID}).Info("broker disconnected")
	}

	return nil
}

func (a *Adapter) State() ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

func (a *Adapter) CreateOrder(ctx context.Context, req *models.OrderRequest) (*models.NormalizedOrder, error) {
	accountID, err := a.tradeableAccount()
	if err != nil {
		return nil, err
	}

	if err := req.Validate(BrokerKey); err != nil {
		return nil, err
	}

	if req.Type == models.OrderTypeTrailingStop && req.TrailPercent == nil {
		trail := models.DefaultTrailPercent
		req.TrailPercent = &trail
	}

	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}

	dto := buildOrderDTO(req, clientOrderID)

	res, err := a.callRaw(ctx, http.MethodPost, fmt.Sprintf("/v1/accounts/%s/orders", accountID), nil, dto)
	if err != nil {
		return nil, markUncertainTimeout(err)
	}

	order := &models.NormalizedOrder{
		OrderID:       orderIDFromLocation(res.location),
		ClientOrderID: clientOrderID,
		Symbol:        normalizeSymbol(req.Symbol),
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		TrailPercent:  req.TrailPercent,
		TimeInForce:   req.TimeInForce,
		Status:        models.OrderStatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	return order, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string, symbol string) (bool, error) {
	accountID, err := a.tradeableAccount()
	if err != nil {
		return false, err
	}

	_, err = a.call(ctx, http.MethodDelete, fmt.Sprintf("/v1/accounts/%s/orders/%s", accountID, orderID), nil, nil)
	if err != nil {
		var brokerErr *models.BrokerError
		if errors.As(err, &brokerErr) && brokerErr.Kind == models.ErrorKindOrderNotFound {
			return false, models.NewOrderNotFoundError(BrokerKey, orderID)
		}

		return false, err
	}

	return true, nil
}

func (a *Adapter) GetOrderStatus(ctx context.Context, orderID string, symbol string) (*models.NormalizedOrder, error) {
	accountID, err := a.tradeableAccount()
	if err != nil {
		return nil, err
	}

	body, err := a.call(ctx, http.MethodGet, fmt.Sprintf("/v1/accounts/%s/orders/%s", accountID, orderID), nil, nil)
	if err != nil {
		return nil, err
	}

	var dto orderDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("ameritrade.GetOrderStatus: failed to parse response: %w", err)
	}

	return dto.ToNormalizedOrder(), nil
}

func (a *Adapter) GetOrderHistory(ctx context.Context, filter *models.OrderHistoryFilter) ([]*models.NormalizedOrder, error) {
	accountID, err := a.tradeableAccount()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	if filter != nil {
		if filter.StartDate != nil {
			params.Set("fromEnteredTime", filter.StartDate.UTC().Format("2006-01-02"))
		}
		if filter.EndDate != nil {
			params.Set("toEnteredTime", filter.EndDate.UTC().Format("2006-01-02"))
		}
	}

	body, err := a.call(ctx, http.MethodGet, fmt.Sprintf("/v1/accounts/%s/orders", accountID), params, nil)
	if err != nil {
		return nil, err
	}

	var dtos []orderDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("ameritrade.GetOrderHistory: failed to parse response: %w", err)
	}

	orders := make([]*models.NormalizedOrder, 0, len(dtos))
	for i := range dtos {
		orders = append(orders, dtos[i].ToNormalizedOrder())
	}

	return brokers.FilterOrderHistory(orders, filter), nil
}

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

func (a *Adapter) GetPositions(ctx context.Context) ([]*models.Position, error) {
	account, err := a.fetchAccount(ctx, true)
	if err != nil {
		return nil, err
	}

	positions := make([]*models.Position, 0, len(account.Positions))
	for i := range account.Positions {
		positions = append(positions, account.Positions[i].ToPosition())
	}

	return positions, nil
}

func (a *Adapter) GetBalance(ctx context.Context, currency string) (*models.AccountBalance, error) {
	account, err := a.fetchAccount(ctx, false)
	if err != nil {
		return nil, err
	}

	if currency == "" {
		currency = "USD"
	}

	balances := account.CurrentBalances

	total := balances.Equity
	if total == 0 {
		total = balances.LiquidationValue
	}

	return &models.AccountBalance{
		Free:        balances.CashBalance,
		Total:       total,
		BuyingPower: balances.BuyingPower,
		MarginUsed:  balances.MaintenanceRequirement,
		Currency:    currency,
	}, nil
}

func (a *Adapter) GetMarketPrice(ctx context.Context, symbol string) (*models.MarketQuote, error) {
	if err := a.ensureAuthenticated(); err != nil {
		return nil, err
	}

	target := normalizeSymbol(symbol)

	body, err := a.call(ctx, http.MethodGet, fmt.Sprintf("/v1/marketdata/%s/quotes", target), nil, nil)
	if err != nil {
		return nil, err
	}

	var quotes map[string]quoteDTO
	if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, fmt.Errorf("ameritrade.GetMarketPrice: failed to parse response: %w", err)
	}

	dto, ok := quotes[target]
	if !ok {
		return nil, models.NewOrderRejectedError(BrokerKey, "no quote returned for symbol", symbol)
	}

	return &models.MarketQuote{
		Symbol:    dto.Symbol,
		Bid:       dto.BidPrice,
		Ask:       dto.AskPrice,
		Last:      dto.LastPrice,
		BidSize:   dto.BidSize,
		AskSize:   dto.AskSize,
		Timestamp: time.UnixMilli(dto.QuoteTimeInLong).UTC(),
	}, nil
}

// IsSymbolSupported resolves the symbol through the quote endpoint and
// returns false on any failure.
func (a *Adapter) IsSymbolSupported(ctx context.Context, symbol string) bool {
	quote, err := a.GetMarketPrice(ctx, symbol)
	if err != nil {
		log.WithFields(log.Fields{"broker": BrokerKey, "symbol": symbol}).Warnf("symbol support check degraded to false: %v", err)
		return false
	}

	return quote.Symbol != ""
}

// GetFees always answers: online equity trades are commission-free, and fee
// lookups must not block trading decisions.
func (a *Adapter) GetFees(ctx context.Context, symbol string) *models.FeeSchedule {
	return &models.FeeSchedule{
		Commission: 0,
		Currency:   "USD",
		Notes:      "commission-free online equity trades; options carry per-contract fees",
	}
}

func (a *Adapter) GetBrokerInfo() *models.BrokerInfo {
	a.mu.Lock()
	authenticated := a.state == StateAuthenticated
	a.mu.Unlock()

	return &models.BrokerInfo{
		Name:            "TD Ameritrade",
		Key:             BrokerKey,
		Type:            models.BrokerTypeStockBrokerage,
		IsAuthenticated: authenticated,
		SupportsStocks:  true,
		SupportsOptions: true,
		Features: models.BrokerFeatures{
			TrailingStops: true,
			ExtendedHours: true,
		},
	}
}

// RefreshCredential is the refresh primitive the token refresh coordinator
// invokes: decrypt the stored secret, exchange the refresh token, and return
// an updated credential with the new payload sealed by the vault.
func (a *Adapter) RefreshCredential(ctx context.Context, cred *models.BrokerCredential) (*models.BrokerCredential, error) {
	var secret models.OAuthSecret
	if err := a.vaultSvc.DecryptJSON(&cred.Payload, &secret); err != nil {
		return nil, err
	}

	manager := newTokenManager(&secret, a.tokenURL, time.Time{})
	manager.client = a.httpClient

	if _, err := manager.refresh(ctx); err != nil {
		return nil, err
	}

	token := manager.current()
	secret.AccessToken = token.AccessToken
	secret.RefreshToken = token.RefreshToken

	payload, err := a.vaultSvc.EncryptJSON(&secret)
	if err != nil {
		return nil, err
	}

	updated := *cred
	updated.Payload = *payload
	updated.OAuth = &models.OAuthMeta{ExpiresAt: token.Expiry}
	if cred.OAuth != nil {
		updated.OAuth.Scope = cred.OAuth.Scope
	}
	updated.UpdatedAt = time.Now().UTC()

	return &updated, nil
}

type rawResponse struct {
	body     []byte
	location string
}

// call wraps callRaw for endpoints where only the body matters.
func (a *Adapter) call(ctx context.Context, method, path string, params url.Values, jsonBody interface{}) ([]byte, error) {
	res, err := a.callRaw(ctx, method, path, params, jsonBody)
	if err != nil {
		return nil, err
	}

	return res.body, nil
}

// callRaw performs one authenticated vendor call. The cached token is used
// when still valid and refreshed proactively when past expiry. A 401 despite
// a seemingly-valid token (clock skew, server-side revocation) triggers
// exactly one reactive refresh-and-retry; a second 401 escalates to
// AUTHENTICATION_FAILED so callers must re-initiate authorization.
func (a *Adapter) callRaw(ctx context.Context, method, path string, params url.Values, jsonBody interface{}) (*rawResponse, error) {
	a.mu.Lock()
	tokens := a.tokens
	a.mu.Unlock()

	if tokens == nil {
		return nil, models.NewConfigurationError(BrokerKey, "adapter is not connected; call Connect first")
	}

	if err := a.governor.Admit(a.userID, BrokerKey); err != nil {
		return nil, err
	}

	accessToken, err := tokens.accessToken(ctx)
	if err != nil {
		a.escalateAuthFailure(err)
		return nil, err
	}

	res, err := a.doHTTP(ctx, method, path, params, jsonBody, accessToken)
	if err != nil {
		return nil, err
	}

	if res.statusCode != http.StatusUnauthorized {
		return a.finishResponse(res)
	}

	// reactive path: one refresh, one retry
	log.WithFields(log.Fields{"broker": BrokerKey, "path": path}).Warn("401 with cached token, attempting reactive refresh")
	a.setState(StateTokenExpired)

	a.setState(StateRefreshing)
	accessToken, err = tokens.refresh(ctx)
	if err != nil {
		a.escalateAuthFailure(err)
		return nil, err
	}

	a.setState(StateAuthenticated)

	if err := a.governor.Admit(a.userID, BrokerKey); err != nil {
		return nil, err
	}

	res, err = a.doHTTP(ctx, method, path, params, jsonBody, accessToken)
	if err != nil {
		return nil, err
	}

	if res.statusCode == http.StatusUnauthorized {
		a.setState(StateAuthenticationFailed)
		return nil, models.NewAuthenticationError(BrokerKey, "vendor rejected refreshed token; re-authorization required")
	}

	return a.finishResponse(res)
}

type httpResult struct {
	statusCode int
	header     http.Header
	body       []byte
}

func (a *Adapter) doHTTP(ctx context.Context, method, path string, params url.Values, jsonBody interface{}, accessToken string) (*httpResult, error) {
	fullURL := a.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if jsonBody != nil {
		encoded, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, fmt.Errorf("ameritrade.doHTTP: failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ameritrade.doHTTP: failed to create request: %w", err)
	}

	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", accessToken))
	if jsonBody != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	log.Tracef("ameritrade: %s %s", method, path)

	res, err := a.httpClient.Do(req)
	if err != nil {
		return nil, brokers.ClassifyTransportError(BrokerKey, err)
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("ameritrade.doHTTP: failed to read response body: %w", err)
	}

	result := &httpResult{
		statusCode: res.StatusCode,
		header:     res.Header,
		body:       body,
	}

	if location := res.Header.Get("Location"); location != "" {
		result.header.Set("Location", location)
	}

	return result, nil
}

func (a *Adapter) finishResponse(res *httpResult) (*rawResponse, error) {
	if res.statusCode >= 200 && res.statusCode < 300 {
		return &rawResponse{body: res.body, location: res.header.Get("Location")}, nil
	}

	if res.statusCode == http.StatusBadRequest {
		return nil, models.NewOrderRejectedError(BrokerKey, "vendor rejected the request", vendorReason(res.body))
	}

	return nil, brokers.ClassifyHTTPStatus(BrokerKey, res.statusCode, res.header, res.body)
}

func (a *Adapter) fetchAccount(ctx context.Context, withPositions bool) (*securitiesAccountDTO, error) {
	accountID, err := a.tradeableAccount()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	if withPositions {
		params.Set("fields", "positions")
	}

	body, err := a.call(ctx, http.MethodGet, fmt.Sprintf("/v1/accounts/%s", accountID), params, nil)
	if err != nil {
		return nil, err
	}

	var dto struct {
		SecuritiesAccount securitiesAccountDTO `json:"securitiesAccount"`
	}
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("ameritrade.fetchAccount: failed to parse response: %w", err)
	}

	return &dto.SecuritiesAccount, nil
}

func (a *Adapter) ensureAuthenticated() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateAuthenticated {
		return models.NewConfigurationError(BrokerKey, "adapter is not connected; call Connect first")
	}

	return nil
}

func (a *Adapter) tradeableAccount() (string, error) {
	if err := a.ensureAuthenticated(); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accountID == "" {
		return "", models.NewConfigurationError(BrokerKey, "no account selected; call SelectAccount with one of the connected accounts")
	}

	return a.accountID, nil
}

func (a *Adapter) setState(state ConnectionState) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

// escalateAuthFailure flips the connection to AUTHENTICATION_FAILED when a
// refresh failed permanently; transient refresh trouble leaves the state
// untouched so the next call can try again.
func (a *Adapter) escalateAuthFailure(err error) {
	var brokerErr *models.BrokerError
	if errors.As(err, &brokerErr) && brokerErr.Kind == models.ErrorKindAuthentication {
		a.setState(StateAuthenticationFailed)
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func orderIDFromLocation(location string) string {
	if location == "" {
		return ""
	}

	parts := strings.Split(strings.TrimSuffix(location, "/"), "/")

	return parts[len(parts)-1]
}

func vendorReason(body []byte) string {
	var dto struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &dto); err == nil && dto.Error != "" {
		return dto.Error
	}

	return string(body)
}

func markUncertainTimeout(err error) error {
	var brokerErr *models.BrokerError
	if errors.As(err, &brokerErr) && brokerErr.Kind == models.ErrorKindTimeout {
		brokerErr.Uncertain = true
	}

	return err
}
