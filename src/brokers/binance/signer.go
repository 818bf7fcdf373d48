package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer produces the HMAC-SHA256 request signatures Binance requires on
// signed endpoints. Keys are held as []byte so they can be wiped when the
// adapter disconnects.
type Signer struct {
	apiKey    []byte
	apiSecret []byte
}

func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{
		apiKey:    []byte(apiKey),
		apiSecret: []byte(apiSecret),
	}
}

func (s *Signer) APIKey() string {
	return string(s.apiKey)
}

// Sign computes the hex-encoded HMAC-SHA256 of the canonical query string.
func (s *Signer) Sign(queryString string) string {
	mac := hmac.New(sha256.New, s.apiSecret)
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}

// Wipe clears the key material from memory.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}

	wipeSlice(s.apiKey)
	wipeSlice(s.apiSecret)
}

func wipeSlice(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
