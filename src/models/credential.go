package models

import (
	"fmt"
	"time"
)

type AuthMethod string

const (
	AuthMethodAPIKeySecret AuthMethod = "api-key-secret"
	AuthMethodOAuth2       AuthMethod = "oauth2"
)

type Environment string

const (
	EnvironmentLive    Environment = "live"
	EnvironmentSandbox Environment = "sandbox"
)

// EncryptedPayload is ciphertext produced by the vault. The auth tag is kept
// separate so tampering with any component fails decryption loudly. Algorithm
// carries the cipher name and the key id used, e.g. "aes-256-gcm/v1", so key
// rotation can keep old ids decryptable while new writes use the active id.
type EncryptedPayload struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	AuthTag    []byte `json:"authTag"`
	Algorithm  string `json:"algorithm"`
}

// OAuthMeta holds the non-secret OAuth bookkeeping needed by the token
// refresh coordinator without decrypting the payload.
type OAuthMeta struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Scope     string    `json:"scope,omitempty"`
}

// BrokerCredential is the stored secret material for one (user, broker)
// connection. Plaintext secrets never live here: only the vault produces
// plaintext, and only transiently in memory.
type BrokerCredential struct {
	UserID      string           `json:"userId"`
	BrokerKey   string           `json:"brokerKey"`
	Method      AuthMethod       `json:"method"`
	Payload     EncryptedPayload `json:"payload"`
	OAuth       *OAuthMeta       `json:"oauth,omitempty"`
	Environment Environment      `json:"environment"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func (c *BrokerCredential) Key() string {
	return fmt.Sprintf("%s:%s", c.UserID, c.BrokerKey)
}

// ExpiresWithin reports whether an OAuth credential's access token expires
// inside the lookahead window. Non-OAuth credentials never expire.
func (c *BrokerCredential) ExpiresWithin(now time.Time, lookahead time.Duration) bool {
	if c.Method != AuthMethodOAuth2 || c.OAuth == nil {
		return false
	}

	return !c.OAuth.ExpiresAt.After(now.Add(lookahead))
}

// APIKeySecret is the transient decrypted form of an api-key-secret payload.
type APIKeySecret struct {
	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
	Passphrase string `json:"passphrase,omitempty"`
}

// OAuthSecret is the transient decrypted form of an oauth2 payload.
type OAuthSecret struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
}
