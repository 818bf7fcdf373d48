package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tradesignals/broker-gateway/src/models"
)

const (
	cipherName = "aes-256-gcm"
	keySize    = 32
)

// Vault performs authenticated encryption of broker credential payloads with
// AES-256-GCM. Keys form a versioned ring: every key id remains decryptable,
// new writes always use the active id. Rotating a key is therefore adding a
// new id and re-encrypting stored payloads at leisure, not a flag day.
type Vault struct {
	keys     map[string][]byte
	activeID string
}

func NewVault(keys map[string][]byte, activeID string) (*Vault, error) {
	if len(keys) == 0 {
		return nil, models.NewConfigurationError("vault", "no encryption keys provided")
	}

	for id, key := range keys {
		if len(key) != keySize {
			return nil, models.NewConfigurationError("vault", fmt.Sprintf("key %q must be %d bytes, got %d", id, keySize, len(key)))
		}
	}

	if _, ok := keys[activeID]; !ok {
		return nil, models.NewConfigurationError("vault", fmt.Sprintf("active key id %q not present in key ring", activeID))
	}

	ring := make(map[string][]byte, len(keys))
	for id, key := range keys {
		ring[id] = append([]byte(nil), key...)
	}

	return &Vault{keys: ring, activeID: activeID}, nil
}

// NewVaultFromEnv builds the key ring from ENCRYPTION_KEYS, a comma-separated
// list of "<id>:<64 hex chars>" entries, with ENCRYPTION_ACTIVE_KEY naming
// the id used for new writes (defaults to the sole id when only one is set).
func NewVaultFromEnv() (*Vault, error) {
	raw := os.Getenv("ENCRYPTION_KEYS")
	if raw == "" {
		return nil, models.NewConfigurationError("vault", "ENCRYPTION_KEYS environment variable not set")
	}

	keys := make(map[string][]byte)
	for _, entry := range strings.Split(raw, ",") {
		id, hexKey, found := strings.Cut(strings.TrimSpace(entry), ":")
		if !found {
			return nil, models.NewConfigurationError("vault", "ENCRYPTION_KEYS entries must be <id>:<hex key>")
		}

		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, models.NewConfigurationError("vault", fmt.Sprintf("key %q is not valid hex", id))
		}

		keys[id] = key
	}

	activeID := os.Getenv("ENCRYPTION_ACTIVE_KEY")
	if activeID == "" {
		if len(keys) != 1 {
			return nil, models.NewConfigurationError("vault", "ENCRYPTION_ACTIVE_KEY must be set when multiple keys are configured")
		}
		for id := range keys {
			activeID = id
		}
	}

	return NewVault(keys, activeID)
}

// Encrypt seals plaintext under the active key. The returned payload carries
// ciphertext, IV and auth tag separately, plus the algorithm/key-id stamp
// decrypt uses to pick the right key.
func (v *Vault) Encrypt(plaintext []byte) (*models.EncryptedPayload, error) {
	aesGCM, err := v.newGCM(v.activeID)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("Vault.Encrypt: failed to generate iv: %w", err)
	}

	sealed := aesGCM.Seal(nil, iv, plaintext, nil)

	tagOffset := len(sealed) - aesGCM.Overhead()
	payload := &models.EncryptedPayload{
		Ciphertext: append([]byte(nil), sealed[:tagOffset]...),
		IV:         iv,
		AuthTag:    append([]byte(nil), sealed[tagOffset:]...),
		Algorithm:  fmt.Sprintf("%s/%s", cipherName, v.activeID),
	}

	return payload, nil
}

// Decrypt opens a payload with the key named in its algorithm stamp. A failed
// auth tag means tampering or the wrong key: it surfaces as an IntegrityError
// and is never silently swallowed.
func (v *Vault) Decrypt(payload *models.EncryptedPayload) ([]byte, error) {
	keyID, err := v.keyIDFromAlgorithm(payload.Algorithm)
	if err != nil {
		return nil, err
	}

	aesGCM, err := v.newGCM(keyID)
	if err != nil {
		return nil, err
	}

	if len(payload.IV) != aesGCM.NonceSize() {
		return nil, models.NewIntegrityError("invalid iv length", nil)
	}

	sealed := append(append([]byte(nil), payload.Ciphertext...), payload.AuthTag...)

	plaintext, err := aesGCM.Open(nil, payload.IV, sealed, nil)
	if err != nil {
		return nil, models.NewIntegrityError("credential payload failed authentication", err)
	}

	return plaintext, nil
}

// EncryptJSON marshals v into JSON and encrypts it. Used for the transient
// secret structs (APIKeySecret, OAuthSecret).
func (v *Vault) EncryptJSON(value interface{}) (*models.EncryptedPayload, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("Vault.EncryptJSON: failed to marshal secret: %w", err)
	}

	return v.Encrypt(plaintext)
}

// DecryptJSON decrypts a payload and unmarshals it into out.
func (v *Vault) DecryptJSON(payload *models.EncryptedPayload, out interface{}) error {
	plaintext, err := v.Decrypt(payload)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return models.NewIntegrityError("decrypted payload is not valid JSON", err)
	}

	return nil
}

// ActiveKeyID returns the id used for new writes.
func (v *Vault) ActiveKeyID() string {
	return v.activeID
}

func (v *Vault) newGCM(keyID string) (cipher.AEAD, error) {
	key, ok := v.keys[keyID]
	if !ok {
		return nil, models.NewIntegrityError(fmt.Sprintf("no key in ring for id %q", keyID), nil)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("Vault.newGCM: failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("Vault.newGCM: failed to create gcm: %w", err)
	}

	return aesGCM, nil
}

func (v *Vault) keyIDFromAlgorithm(algorithm string) (string, error) {
	name, keyID, found := strings.Cut(algorithm, "/")
	if !found || name != cipherName {
		return "", models.NewIntegrityError(fmt.Sprintf("unsupported algorithm %q", algorithm), nil)
	}

	return keyID, nil
}
