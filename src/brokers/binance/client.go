package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tradesignals/broker-gateway/src/brokers"
	"github.com/tradesignals/broker-gateway/src/models"
)

const (
	liveBaseURL    = "https://api.binance.com"
	testnetBaseURL = "https://testnet.binance.vision"

	recvWindowMs = 5000
)

// Client issues signed and unsigned REST calls against the Binance spot API.
// Every call independently proves identity via the query-string signature, so
// there is no session or token lifecycle to manage.
type Client struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL string, signer *Signer) *Client {
	return &Client{
		baseURL: baseURL,
		signer:  signer,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// do performs one vendor call. Signed requests get timestamp, recvWindow and
// signature appended to the canonical query string. Failures come back as
// *models.BrokerError so callers never see raw transport errors.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	if signed {
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.Itoa(recvWindowMs))
	}

	query := params.Encode()
	if signed {
		query += "&signature=" + c.signer.Sign(query)
	}

	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("binance.Client.do: failed to create request: %w", err)
	}

	req.Header.Add("Accept", "application/json")
	if c.signer != nil {
		req.Header.Add("X-MBX-APIKEY", c.signer.APIKey())
	}

	log.Tracef("binance: %s %s", method, path)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, brokers.ClassifyTransportError(BrokerKey, err)
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("binance.Client.do: failed to read response body: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, c.classifyError(res, body)
	}

	return body, nil
}

// classifyError refines the generic HTTP classification with Binance error
// codes when the body carries them.
func (c *Client) classifyError(res *http.Response, body []byte) *models.BrokerError {
	var dto errorDTO
	if err := json.Unmarshal(body, &dto); err == nil && dto.Code != 0 {
		switch dto.Code {
		case -2013, -2011:
			// unknown order / cancel rejected because order does not exist
			return &models.BrokerError{Kind: models.ErrorKindOrderNotFound, Broker: BrokerKey, Message: dto.Msg}
		case -2010, -1013, -1121:
			// insufficient funds, filter failure, invalid symbol
			return models.NewOrderRejectedError(BrokerKey, "vendor rejected the order", dto.Msg)
		case -2014, -2015, -1022:
			// bad API key, invalid key/permissions, bad signature
			return models.NewAuthenticationError(BrokerKey, dto.Msg)
		case -1003:
			return models.NewRateLimitedError(BrokerKey, dto.Msg, retryAfterSeconds(res.Header))
		}
	}

	return brokers.ClassifyHTTPStatus(BrokerKey, res.StatusCode, res.Header, body)
}

func retryAfterSeconds(header http.Header) time.Duration {
	raw := header.Get("Retry-After")
	if seconds, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return time.Second
}
