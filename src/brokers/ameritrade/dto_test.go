package ameritrade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesignals/broker-gateway/src/models"
)

func Test_buildOrderDTO(t *testing.T) {
	t.Run("limit order becomes a single equity leg", func(t *testing.T) {
		price := 150.0

		dto := buildOrderDTO(&models.OrderRequest{
			Symbol:      "aapl",
			Side:        models.OrderSideBuy,
			Type:        models.OrderTypeLimit,
			Quantity:    10,
			LimitPrice:  &price,
			TimeInForce: models.TimeInForceGTC,
		}, "client-1")

		assert.Equal(t, "LIMIT", dto.OrderType)
		assert.Equal(t, "GOOD_TILL_CANCEL", dto.Duration)
		assert.Equal(t, "SINGLE", dto.OrderStrategyType)
		assert.Equal(t, 150.0, dto.Price)
		assert.Equal(t, "client-1", dto.Tag)

		require.Len(t, dto.OrderLegCollection, 1)
		leg := dto.OrderLegCollection[0]
		assert.Equal(t, "BUY", leg.Instruction)
		assert.Equal(t, 10.0, leg.Quantity)
		assert.Equal(t, "AAPL", leg.Instrument.Symbol)
		assert.Equal(t, "EQUITY", leg.Instrument.AssetType)
	})

	t.Run("sell side maps to the sell instruction", func(t *testing.T) {
		dto := buildOrderDTO(&models.OrderRequest{
			Symbol:   "AAPL",
			Side:     models.OrderSideSell,
			Type:     models.OrderTypeMarket,
			Quantity: 5,
		}, "client-2")

		assert.Equal(t, "SELL", dto.OrderLegCollection[0].Instruction)
		// unset time in force falls back to a day order
		assert.Equal(t, "DAY", dto.Duration)
	})

	t.Run("trailing stop uses a percent offset from mark", func(t *testing.T) {
		trail := 5.0

		dto := buildOrderDTO(&models.OrderRequest{
			Symbol:       "AAPL",
			Side:         models.OrderSideSell,
			Type:         models.OrderTypeTrailingStop,
			Quantity:     5,
			TrailPercent: &trail,
		}, "client-3")

		assert.Equal(t, "TRAILING_STOP", dto.OrderType)
		assert.Equal(t, "MARK", dto.StopPriceLinkBasis)
		assert.Equal(t, "PERCENT", dto.StopPriceLinkType)
		assert.Equal(t, 5.0, dto.StopPriceOffset)
	})
}

func Test_statusFromVendor(t *testing.T) {
	assert.Equal(t, models.OrderStatusOpen, statusFromVendor("ACCEPTED", 0, 10))
	assert.Equal(t, models.OrderStatusOpen, statusFromVendor("QUEUED", 0, 10))
	assert.Equal(t, models.OrderStatusOpen, statusFromVendor("WORKING", 0, 10))
	assert.Equal(t, models.OrderStatusPartiallyFilled, statusFromVendor("WORKING", 4, 10))
	assert.Equal(t, models.OrderStatusFilled, statusFromVendor("FILLED", 10, 10))
	assert.Equal(t, models.OrderStatusCancelled, statusFromVendor("CANCELED", 0, 10))
	assert.Equal(t, models.OrderStatusRejected, statusFromVendor("REJECTED", 0, 10))
	assert.Equal(t, models.OrderStatusExpired, statusFromVendor("EXPIRED", 0, 10))
	assert.Equal(t, models.OrderStatusPending, statusFromVendor("PENDING_ACTIVATION", 0, 10))

	// anything unmapped degrades to unknown rather than guessing
	assert.Equal(t, models.OrderStatusUnknown, statusFromVendor("SOME_NEW_STATE", 0, 10))
}

func Test_OrderDTO_ToNormalizedOrder(t *testing.T) {
	dto := &orderDTO{
		OrderID:        42,
		OrderType:      "STOP_LIMIT",
		Duration:       "GOOD_TILL_CANCEL",
		Status:         "WORKING",
		Quantity:       10,
		FilledQuantity: 3,
		Price:          99.5,
		StopPrice:      100.5,
		EnteredTime:    "2024-03-15T10:30:00+0000",
		Tag:            "client-9",
		OrderLegCollection: []orderLegDTO{
			{Instruction: "SELL_SHORT", Quantity: 10, Instrument: instrumentDTO{Symbol: "TSLA", AssetType: "EQUITY"}},
		},
	}

	order := dto.ToNormalizedOrder()

	assert.Equal(t, "42", order.OrderID)
	assert.Equal(t, "client-9", order.ClientOrderID)
	assert.Equal(t, "TSLA", order.Symbol)
	assert.Equal(t, models.OrderSideSell, order.Side)
	assert.Equal(t, models.OrderTypeStopLimit, order.Type)
	assert.Equal(t, models.TimeInForceGTC, order.TimeInForce)
	assert.Equal(t, models.OrderStatusPartiallyFilled, order.Status)
	require.NotNil(t, order.LimitPrice)
	assert.Equal(t, 99.5, *order.LimitPrice)
	require.NotNil(t, order.StopPrice)
	assert.Equal(t, 100.5, *order.StopPrice)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), order.CreatedAt)
	assert.NoError(t, order.CheckFillInvariant())
}

func Test_PositionDTO_ToPosition(t *testing.T) {
	t.Run("net long", func(t *testing.T) {
		dto := &positionDTO{LongQuantity: 10, AveragePrice: 150, MarketValue: 1520, Instrument: instrumentDTO{Symbol: "AAPL"}}

		position := dto.ToPosition()

		assert.Equal(t, 10.0, position.Quantity)
		assert.Equal(t, models.PositionSideLong, position.Side)
	})

	t.Run("net short carries a negative quantity", func(t *testing.T) {
		dto := &positionDTO{ShortQuantity: 4, Instrument: instrumentDTO{Symbol: "TSLA"}}

		position := dto.ToPosition()

		assert.Equal(t, -4.0, position.Quantity)
		assert.Equal(t, models.PositionSideShort, position.Side)
	})
}

func Test_parseVendorTime(t *testing.T) {
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), parseVendorTime("2024-03-15T10:30:00+0000"))
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), parseVendorTime("2024-03-15T10:30:00Z"))
	assert.True(t, parseVendorTime("").IsZero())
	assert.True(t, parseVendorTime("not a time").IsZero())
}
