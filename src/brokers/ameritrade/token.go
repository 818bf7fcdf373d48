package ameritrade

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tradesignals/broker-gateway/src/models"
)

// expirySkew treats a token as expired slightly early so we refresh before a
// guaranteed 401 round-trip.
const expirySkew = 30 * time.Second

// tokenManager owns the OAuth access token lifecycle for one connection.
// Refreshes are deduplicated through singleflight: when two calls detect
// expiry at the same time, the first refreshes and the second reuses its
// result, so the vendor's refresh endpoint is hit exactly once.
type tokenManager struct {
	mu     sync.Mutex
	sf     singleflight.Group
	conf   *oauth2.Config
	token  *oauth2.Token
	client *http.Client
}

func newTokenManager(secret *models.OAuthSecret, tokenURL string, expiresAt time.Time) *tokenManager {
	return &tokenManager{
		conf: &oauth2.Config{
			ClientID:     secret.ClientID,
			ClientSecret: secret.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		token: &oauth2.Token{
			AccessToken:  secret.AccessToken,
			RefreshToken: secret.RefreshToken,
			Expiry:       expiresAt,
		},
	}
}

// accessToken returns a token that is valid for at least expirySkew,
// refreshing proactively when the cached one has expired.
func (m *tokenManager) accessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token.AccessToken != "" && token.Expiry.After(time.Now().Add(expirySkew)) {
		return token.AccessToken, nil
	}

	return m.refresh(ctx)
}

// refresh exchanges the refresh token for a new access token, deduplicated
// per manager. An invalid refresh token is a permanent failure requiring full
// re-authorization, never silently retried.
func (m *tokenManager) refresh(ctx context.Context) (string, error) {
	result, err, _ := m.sf.Do("refresh", func() (interface{}, error) {
		m.mu.Lock()
		refreshToken := m.token.RefreshToken
		m.mu.Unlock()

		if refreshToken == "" {
			return nil, models.NewAuthenticationError(BrokerKey, "no refresh token available; re-authorization required")
		}

		if m.client != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
		}

		source := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

		newToken, err := source.Token()
		if err != nil {
			return nil, classifyRefreshError(err)
		}

		if newToken.RefreshToken == "" {
			newToken.RefreshToken = refreshToken
		}

		m.mu.Lock()
		m.token = newToken
		m.mu.Unlock()

		log.WithFields(log.Fields{"broker": BrokerKey, "expiry": newToken.Expiry}).Debug("access token refreshed")

		return newToken.AccessToken, nil
	})

	if err != nil {
		return "", err
	}

	return result.(string), nil
}

func (m *tokenManager) current() *oauth2.Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.token
}

// classifyRefreshError separates a rejected refresh token (permanent, needs
// re-authorization) from transport trouble (transient).
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return models.NewAuthenticationError(BrokerKey, "refresh token rejected; re-authorization required")
		}

		return models.NewVendorUnavailableError(BrokerKey, "token endpoint unavailable")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewTimeoutError(BrokerKey, "token refresh timed out", err)
	}

	return models.NewVendorUnavailableError(BrokerKey, "token refresh failed: "+err.Error())
}
