package auth

import (
	"strings"

	"github.com/BaSui01/skillflow/types"
)

// OAuthProvider identifies a supported identity provider. The set is closed:
// connections naming any other provider are rejected at configuration time.
type OAuthProvider string

const (
	ProviderAzureAD OAuthProvider = "azureAD"
	ProviderGoogle  OAuthProvider = "google"
	ProviderTodoist OAuthProvider = "todoist"
)

// Provider display-name fragments recognized by ParseProvider.
const (
	displayAzureAD = "azure active directory"
	displayGoogle  = "google"
	displayTodoist = "todoist"
)

// ParseProvider maps a connection's service provider display name onto a
// known OAuthProvider. Unknown names fail with an UNKNOWN_PROVIDER error.
func ParseProvider(displayName string) (OAuthProvider, error) {
	name := strings.ToLower(strings.TrimSpace(displayName))
	switch {
	case strings.Contains(name, displayAzureAD):
		return ProviderAzureAD, nil
	case strings.Contains(name, displayTodoist):
		return ProviderTodoist, nil
	case strings.Contains(name, displayGoogle):
		return ProviderGoogle, nil
	default:
		return "", types.NewError(types.ErrCodeUnknownProvider,
			"could not determine OAuth provider from display name: "+displayName)
	}
}

// Connection is one configured authentication connection.
type Connection struct {
	// Name is the connection name registered with the token service.
	Name string `json:"name" yaml:"name"`
	// ServiceProviderDisplayName is shown to the user when choosing between
	// connections and must map onto a known provider.
	ServiceProviderDisplayName string `json:"serviceProviderDisplayName" yaml:"serviceProviderDisplayName"`
}

// Provider resolves the connection's identity provider.
func (c Connection) Provider() (OAuthProvider, error) {
	return ParseProvider(c.ServiceProviderDisplayName)
}
