package ameritrade

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesignals/broker-gateway/src/governor"
	"github.com/tradesignals/broker-gateway/src/models"
	"github.com/tradesignals/broker-gateway/src/vault"
)

// fakeBrokerage simulates the vendor's REST and OAuth endpoints. The fail401
// counter forces that many 401 responses on API calls before succeeding, which
// drives the reactive refresh path.
type fakeBrokerage struct {
	mu         sync.Mutex
	apiCalls   int
	tokenCalls int
	fail401    int
	accounts   string
	lastAuth   string
	nextToken  string
	apiHandler func(w http.ResponseWriter, r *http.Request)
}

func newFakeBrokerage() *fakeBrokerage {
	return &fakeBrokerage{
		accounts:  `[{"securitiesAccount":{"accountId":"acct-1","type":"CASH"}}]`,
		nextToken: "at-refreshed",
	}
}

func (f *fakeBrokerage) token(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.tokenCalls++
	token := f.nextToken
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":%q,"refresh_token":"rt-rotated","token_type":"Bearer","expires_in":1800}`, token)
}

func (f *fakeBrokerage) api(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.apiCalls++
	f.lastAuth = r.Header.Get("Authorization")

	if f.fail401 > 0 {
		f.fail401--
		f.mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	handler := f.apiHandler
	accounts := f.accounts
	f.mu.Unlock()

	if handler != nil {
		handler(w, r)
		return
	}

	switch {
	case r.URL.Path == "/v1/accounts":
		fmt.Fprint(w, accounts)
	case r.Method == http.MethodPost:
		w.Header().Set("Location", "https://api.example.com/v1/accounts/acct-1/orders/987654")
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusOK)
	default:
		fmt.Fprint(w, `{"orderId":987654,"orderType":"LIMIT","duration":"DAY","status":"WORKING","quantity":10,"filledQuantity":4,"price":150.5,"enteredTime":"2024-03-15T10:30:00+0000","orderLegCollection":[{"instruction":"BUY","quantity":10,"instrument":{"symbol":"AAPL","assetType":"EQUITY"}}]}`)
	}
}

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()

	v, err := vault.NewVault(map[string][]byte{"v1": bytes.Repeat([]byte{0x7a}, 32)}, "v1")
	require.NoError(t, err)

	return v
}

func newOAuthCredential(t *testing.T, v *vault.Vault, expiresAt time.Time) *models.BrokerCredential {
	t.Helper()

	payload, err := v.EncryptJSON(&models.OAuthSecret{
		AccessToken:  "at-initial",
		RefreshToken: "rt-initial",
		ClientID:     "client-1",
	})
	require.NoError(t, err)

	return &models.BrokerCredential{
		UserID:      "user-1",
		BrokerKey:   BrokerKey,
		Method:      models.AuthMethodOAuth2,
		Payload:     *payload,
		Environment: models.EnvironmentLive,
		OAuth:       &models.OAuthMeta{ExpiresAt: expiresAt},
	}
}

func newTestAdapter(t *testing.T, f *fakeBrokerage, opts ...Option) (*Adapter, *vault.Vault) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", f.token)
	mux.HandleFunc("/", f.api)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	v := newTestVault(t)
	opts = append([]Option{WithBaseURL(server.URL), WithTokenURL(server.URL + "/oauth2/token")}, opts...)

	return NewAdapter(v, governor.New(nil), "user-1", opts...), v
}

func Test_Adapter_Connect(t *testing.T) {
	t.Run("single account is selected automatically", func(t *testing.T) {
		adapter, v := newTestAdapter(t, newFakeBrokerage())

		result, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))

		require.NoError(t, err)
		assert.Equal(t, "acct-1", result.AccountID)
		assert.Len(t, result.Accounts, 1)
		assert.Equal(t, StateAuthenticated, adapter.State())
	})

	t.Run("multiple accounts require explicit selection", func(t *testing.T) {
		f := newFakeBrokerage()
		f.accounts = `[{"securitiesAccount":{"accountId":"acct-1","type":"CASH"}},{"securitiesAccount":{"accountId":"acct-2","type":"MARGIN"}}]`

		adapter, v := newTestAdapter(t, f)

		result, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))

		require.NoError(t, err)
		assert.Empty(t, result.AccountID)
		assert.Len(t, result.Accounts, 2)

		// trading before selecting an account is a configuration error
		_, err = adapter.GetBalance(context.Background(), "USD")
		assert.Equal(t, models.ErrorKindConfiguration, models.ErrorKindOf(err))

		// unknown account is rejected
		err = adapter.SelectAccount("acct-9")
		assert.Equal(t, models.ErrorKindValidation, models.ErrorKindOf(err))

		require.NoError(t, adapter.SelectAccount("acct-2"))

		_, err = adapter.GetBalance(context.Background(), "USD")
		assert.NoError(t, err)
	})

	t.Run("first account default is opt in", func(t *testing.T) {
		f := newFakeBrokerage()
		f.accounts = `[{"securitiesAccount":{"accountId":"acct-1","type":"CASH"}},{"securitiesAccount":{"accountId":"acct-2","type":"MARGIN"}}]`

		adapter, v := newTestAdapter(t, f, WithDefaultToFirstAccount())

		result, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))

		require.NoError(t, err)
		assert.Equal(t, "acct-1", result.AccountID)
	})

	t.Run("wrong auth method is a configuration error", func(t *testing.T) {
		adapter, _ := newTestAdapter(t, newFakeBrokerage())

		_, err := adapter.Connect(context.Background(), &models.BrokerCredential{Method: models.AuthMethodAPIKeySecret})

		assert.Equal(t, models.ErrorKindConfiguration, models.ErrorKindOf(err))
	})

	t.Run("empty account list fails authentication", func(t *testing.T) {
		f := newFakeBrokerage()
		f.accounts = `[]`

		adapter, v := newTestAdapter(t, f)

		_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))

		assert.Equal(t, models.ErrorKindAuthentication, models.ErrorKindOf(err))
		assert.Equal(t, StateAuthenticationFailed, adapter.State())
	})
}

func Test_Adapter_ProactiveRefresh(t *testing.T) {
	// arrange: the stored token expired an hour ago, so the very first call
	// must exchange the refresh token before touching the API
	f := newFakeBrokerage()
	adapter, v := newTestAdapter(t, f)

	// act
	_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(-time.Hour)))

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, f.tokenCalls)
	assert.Equal(t, "Bearer at-refreshed", f.lastAuth)
}

func Test_Adapter_ReactiveRefresh(t *testing.T) {
	t.Run("a 401 with a cached token triggers exactly one refresh and retry", func(t *testing.T) {
		f := newFakeBrokerage()
		adapter, v := newTestAdapter(t, f)

		_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))
		require.NoError(t, err)
		require.Zero(t, f.tokenCalls)

		f.mu.Lock()
		f.fail401 = 1
		f.mu.Unlock()

		_, err = adapter.GetBalance(context.Background(), "USD")

		require.NoError(t, err)
		assert.Equal(t, 1, f.tokenCalls)
		assert.Equal(t, "Bearer at-refreshed", f.lastAuth)
		assert.Equal(t, StateAuthenticated, adapter.State())
	})

	t.Run("a second 401 after refresh escalates to authentication failed", func(t *testing.T) {
		f := newFakeBrokerage()
		adapter, v := newTestAdapter(t, f)

		_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))
		require.NoError(t, err)

		f.mu.Lock()
		f.fail401 = 2
		f.mu.Unlock()

		_, err = adapter.GetBalance(context.Background(), "USD")

		require.Error(t, err)
		assert.Equal(t, models.ErrorKindAuthentication, models.ErrorKindOf(err))
		assert.Equal(t, 1, f.tokenCalls)
		assert.Equal(t, StateAuthenticationFailed, adapter.State())
	})

	t.Run("a rejected refresh token is permanent", func(t *testing.T) {
		f := newFakeBrokerage()

		mux := http.NewServeMux()
		mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
		})
		mux.HandleFunc("/", f.api)

		server := httptest.NewServer(mux)
		t.Cleanup(server.Close)

		v := newTestVault(t)
		adapter := NewAdapter(v, governor.New(nil), "user-1", WithBaseURL(server.URL), WithTokenURL(server.URL+"/oauth2/token"))

		_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))
		require.NoError(t, err)

		f.mu.Lock()
		f.fail401 = 1
		f.mu.Unlock()

		_, err = adapter.GetBalance(context.Background(), "USD")

		require.Error(t, err)
		assert.Equal(t, models.ErrorKindAuthentication, models.ErrorKindOf(err))
		assert.Equal(t, StateAuthenticationFailed, adapter.State())
	})
}

func Test_Adapter_Disconnect(t *testing.T) {
	adapter, v := newTestAdapter(t, newFakeBrokerage())

	_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, adapter.Disconnect(context.Background()))
	assert.Equal(t, StateDisconnected, adapter.State())

	// a second disconnect is a no-op
	require.NoError(t, adapter.Disconnect(context.Background()))
	assert.Equal(t, StateDisconnected, adapter.State())

	_, err = adapter.GetBalance(context.Background(), "USD")
	assert.Equal(t, models.ErrorKindConfiguration, models.ErrorKindOf(err))
}

func Test_Adapter_CreateOrder(t *testing.T) {
	t.Run("order id comes from the location header and status starts pending", func(t *testing.T) {
		adapter, v := newTestAdapter(t, newFakeBrokerage())

		_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))
		require.NoError(t, err)

		price := 150.0
		order, err := adapter.CreateOrder(context.Background(), &models.OrderRequest{
			Symbol:     "aapl",
			Side:       models.OrderSideBuy,
			Type:       models.OrderTypeLimit,
			Quantity:   10,
			LimitPrice: &price,
		})

		require.NoError(t, err)
		assert.Equal(t, "987654", order.OrderID)
		assert.Equal(t, "AAPL", order.Symbol)
		assert.Equal(t, models.OrderStatusPending, order.Status)
		assert.NotEmpty(t, order.ClientOrderID)
	})

	t.Run("vendor rejection carries the reason", func(t *testing.T) {
		f := newFakeBrokerage()
		adapter, v := newTestAdapter(t, f)

		_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))
		require.NoError(t, err)

		f.mu.Lock()
		f.apiHandler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"buying power exceeded"}`)
		}
		f.mu.Unlock()

		_, err = adapter.CreateOrder(context.Background(), &models.OrderRequest{
			Symbol:   "AAPL",
			Side:     models.OrderSideBuy,
			Type:     models.OrderTypeMarket,
			Quantity: 100000,
		})

		require.Error(t, err)

		var brokerErr *models.BrokerError
		require.ErrorAs(t, err, &brokerErr)
		assert.Equal(t, models.ErrorKindOrderRejected, brokerErr.Kind)
		assert.Equal(t, "buying power exceeded", brokerErr.VendorReason)
	})
}

func Test_Adapter_GetOrderStatus(t *testing.T) {
	adapter, v := newTestAdapter(t, newFakeBrokerage())

	_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))
	require.NoError(t, err)

	order, err := adapter.GetOrderStatus(context.Background(), "987654", "AAPL")

	require.NoError(t, err)
	assert.Equal(t, "AAPL", order.Symbol)
	assert.Equal(t, models.OrderStatusPartiallyFilled, order.Status)
	assert.Equal(t, 4.0, order.FilledQuantity)
	assert.Equal(t, models.OrderSideBuy, order.Side)
	require.NotNil(t, order.LimitPrice)
	assert.Equal(t, 150.5, *order.LimitPrice)
	assert.NoError(t, order.CheckFillInvariant())
}

func Test_Adapter_GetMarketPrice(t *testing.T) {
	f := newFakeBrokerage()
	f.apiHandler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/accounts" {
			fmt.Fprint(w, `[{"securitiesAccount":{"accountId":"acct-1","type":"CASH"}}]`)
			return
		}

		fmt.Fprint(w, `{"AAPL":{"symbol":"AAPL","bidPrice":150.1,"askPrice":150.3,"lastPrice":150.2,"bidSize":100,"askSize":200,"quoteTimeInLong":1710500000000}}`)
	}

	adapter, v := newTestAdapter(t, f)

	_, err := adapter.Connect(context.Background(), newOAuthCredential(t, v, time.Now().Add(time.Hour)))
	require.NoError(t, err)

	quote, err := adapter.GetMarketPrice(context.Background(), "aapl")

	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 150.1, quote.Bid)
	assert.Equal(t, 150.3, quote.Ask)
	assert.Equal(t, 150.2, quote.Last)
}

func Test_Adapter_RefreshCredential(t *testing.T) {
	f := newFakeBrokerage()
	adapter, v := newTestAdapter(t, f)

	cred := newOAuthCredential(t, v, time.Now().Add(-time.Hour))

	updated, err := adapter.RefreshCredential(context.Background(), cred)

	require.NoError(t, err)
	assert.Equal(t, 1, f.tokenCalls)

	// the sealed payload now carries the rotated tokens
	var secret models.OAuthSecret
	require.NoError(t, v.DecryptJSON(&updated.Payload, &secret))
	assert.Equal(t, "at-refreshed", secret.AccessToken)
	assert.Equal(t, "rt-rotated", secret.RefreshToken)

	require.NotNil(t, updated.OAuth)
	assert.True(t, updated.OAuth.ExpiresAt.After(time.Now()))

	// the original credential is untouched
	var original models.OAuthSecret
	require.NoError(t, v.DecryptJSON(&cred.Payload, &original))
	assert.Equal(t, "at-initial", original.AccessToken)
}

func Test_Adapter_GetFees(t *testing.T) {
	adapter, _ := newTestAdapter(t, newFakeBrokerage())

	// fee lookups answer even before connect
	fees := adapter.GetFees(context.Background(), "AAPL")

	require.NotNil(t, fees)
	assert.Zero(t, fees.Commission)
}
