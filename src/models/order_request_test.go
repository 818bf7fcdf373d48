package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_OrderRequest_Validate(t *testing.T) {
	price := 100.0

	t.Run("limit order requires limit price", func(t *testing.T) {
		req := &OrderRequest{Symbol: "BTC/USDT", Side: OrderSideBuy, Type: OrderTypeLimit, Quantity: 1}

		err := req.Validate("binance")

		require.Error(t, err)
		assert.Equal(t, ErrorKindValidation, ErrorKindOf(err))
		assert.Contains(t, err.Error(), "limitPrice is required")
	})

	t.Run("stop order requires stop price", func(t *testing.T) {
		req := &OrderRequest{Symbol: "BTC/USDT", Side: OrderSideSell, Type: OrderTypeStop, Quantity: 1}

		err := req.Validate("binance")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "stopPrice is required")
	})

	t.Run("stop limit requires both prices", func(t *testing.T) {
		req := &OrderRequest{Symbol: "BTC/USDT", Side: OrderSideSell, Type: OrderTypeStopLimit, Quantity: 1, LimitPrice: &price}

		err := req.Validate("binance")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "stopPrice is required")
	})

	t.Run("market order needs no prices", func(t *testing.T) {
		req := &OrderRequest{Symbol: "BTC/USDT", Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0.5}

		assert.NoError(t, req.Validate("binance"))
	})

	t.Run("quantity must be positive", func(t *testing.T) {
		req := &OrderRequest{Symbol: "BTC/USDT", Side: OrderSideBuy, Type: OrderTypeMarket, Quantity: 0}

		err := req.Validate("binance")

		require.Error(t, err)
		assert.Equal(t, ErrorKindValidation, ErrorKindOf(err))
	})
}

func Test_RiskOrderRequest_CloseSide(t *testing.T) {
	t.Run("positive quantity closes a long with a sell", func(t *testing.T) {
		req := &RiskOrderRequest{Quantity: 0.5}

		side, quantity, err := req.CloseSide("binance")

		require.NoError(t, err)
		assert.Equal(t, OrderSideSell, side)
		assert.Equal(t, 0.5, quantity)
	})

	t.Run("negative quantity closes a short with a buy", func(t *testing.T) {
		req := &RiskOrderRequest{Quantity: -2}

		side, quantity, err := req.CloseSide("ameritrade")

		require.NoError(t, err)
		assert.Equal(t, OrderSideBuy, side)
		assert.Equal(t, 2.0, quantity)
	})

	t.Run("zero quantity is a validation error", func(t *testing.T) {
		req := &RiskOrderRequest{Quantity: 0}

		_, _, err := req.CloseSide("binance")

		require.Error(t, err)
		assert.Equal(t, ErrorKindValidation, ErrorKindOf(err))
	})
}

func Test_BrokerError_Transience(t *testing.T) {
	assert.True(t, IsTransient(NewTimeoutError("binance", "timed out", nil)))
	assert.True(t, IsTransient(NewVendorUnavailableError("binance", "down")))
	assert.True(t, IsTransient(NewRateLimitedError("binance", "slow down", 0)))
	assert.False(t, IsTransient(NewValidationError("binance", "bad input")))
	assert.False(t, IsTransient(NewAuthenticationError("binance", "bad key")))
}
