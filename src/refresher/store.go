package refresher

import (
	"context"

	"github.com/tradesignals/broker-gateway/src/models"
)

// CredentialStore is the slice of the external persistence layer the
// coordinator needs: list stored OAuth credentials and write back refreshed
// ones.
type CredentialStore interface {
	ListOAuthCredentials(ctx context.Context) ([]*models.BrokerCredential, error)
	SaveCredential(ctx context.Context, cred *models.BrokerCredential) error
}

// TokenRefresher is the per-broker refresh primitive, implemented by the
// oauth2 adapter family. It returns the credential with a re-encrypted
// payload and updated expiry.
type TokenRefresher interface {
	RefreshCredential(ctx context.Context, cred *models.BrokerCredential) (*models.BrokerCredential, error)
}
