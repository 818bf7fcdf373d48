package brokers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tradesignals/broker-gateway/src/models"
)

// ClassifyHTTPStatus maps a non-2xx vendor response to the error taxonomy.
// Adapters layer vendor-specific refinements (error codes in the body) on top
// of this baseline before falling back to it.
func ClassifyHTTPStatus(broker string, statusCode int, header http.Header, body []byte) *models.BrokerError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewAuthenticationError(broker, "vendor rejected credentials: "+http.StatusText(statusCode))
	case statusCode == http.StatusNotFound:
		return &models.BrokerError{Kind: models.ErrorKindOrderNotFound, Broker: broker, Message: "vendor reports resource not found"}
	case statusCode == http.StatusTooManyRequests:
		return models.NewRateLimitedError(broker, "vendor throttled the request", retryAfterFromHeader(header))
	case statusCode >= 500:
		return models.NewVendorUnavailableError(broker, "vendor service unavailable: "+http.StatusText(statusCode))
	case statusCode >= 400:
		return models.NewOrderRejectedError(broker, "vendor rejected the request", string(body))
	default:
		return models.NewVendorUnavailableError(broker, "unexpected vendor response: "+strconv.Itoa(statusCode))
	}
}

// ClassifyTransportError maps a failed round-trip (no response at all) to the
// taxonomy. Deadline and timeout failures are transient; callers may retry
// reads but must reconcile state-changing calls first.
func ClassifyTransportError(broker string, err error) *models.BrokerError {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewTimeoutError(broker, "vendor call exceeded deadline", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewTimeoutError(broker, "vendor call timed out", err)
	}

	return models.NewVendorUnavailableError(broker, "vendor call failed: "+err.Error())
}

func retryAfterFromHeader(header http.Header) time.Duration {
	if header == nil {
		return time.Second
	}

	raw := header.Get("Retry-After")
	if raw == "" {
		return time.Second
	}

	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return time.Second
}

// FilterOrderHistory applies the canonical history semantics shared by all
// adapters: drop orders outside [StartDate, EndDate], sort most-recent-first,
// and cap at the effective limit. The endDate filter runs client-side for
// vendors whose history API lacks an upper-bound parameter.
func FilterOrderHistory(orders []*models.NormalizedOrder, filter *models.OrderHistoryFilter) []*models.NormalizedOrder {
	filtered := make([]*models.NormalizedOrder, 0, len(orders))

	symbolFilter := ""
	if filter != nil {
		symbolFilter = flattenSymbol(filter.Symbol)
	}

	for _, order := range orders {
		if filter != nil {
			if symbolFilter != "" && flattenSymbol(order.Symbol) != symbolFilter {
				continue
			}
			if filter.StartDate != nil && order.CreatedAt.Before(*filter.StartDate) {
				continue
			}
			if filter.EndDate != nil && order.CreatedAt.After(*filter.EndDate) {
				continue
			}
		}

		filtered = append(filtered, order)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	limit := filter.EffectiveLimit()
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	return filtered
}

// flattenSymbol reduces a symbol to upper case without separators so the
// history filter matches whether the caller passed the canonical or the
// vendor spelling.
func flattenSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
}
