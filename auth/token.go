package auth

import (
	"context"

	"github.com/BaSui01/skillflow/types"
)

// ProviderTokenResponse pairs a resolved token with the provider it came
// from, so callers can dispatch on identity source.
type ProviderTokenResponse struct {
	AuthenticationProvider OAuthProvider       `json:"authenticationProvider"`
	TokenResponse          types.TokenResponse `json:"tokenResponse"`
}

// TokenProvider is the host-side token service contract used on the local
// auth path. Remote skills do not need one; they delegate to the caller via
// token events.
type TokenProvider interface {
	// GetUserToken returns the cached token for the user on the given
	// connection, or a response with an empty token when none is cached.
	GetUserToken(ctx context.Context, userID, connectionName string) (*types.TokenResponse, error)
	// GetTokenStatus reports, per connection, whether the user already has
	// a cached token.
	GetTokenStatus(ctx context.Context, userID string) ([]types.TokenStatus, error)
	// SignOutUser revokes the user's token on one connection, or on every
	// connection when connectionName is empty.
	SignOutUser(ctx context.Context, userID, connectionName string) error
}
