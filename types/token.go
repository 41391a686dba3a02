package types

// TokenResponse is the opaque bearer token returned by a token service for a
// named OAuth connection.
type TokenResponse struct {
	ConnectionName string `json:"connectionName,omitempty"`
	Token          string `json:"token,omitempty"`
	Expiration     string `json:"expiration,omitempty"`
}

// HasToken reports whether the response carries a usable token.
func (t *TokenResponse) HasToken() bool {
	return t != nil && t.Token != ""
}

// TokenStatus describes whether a cached token exists for a connection,
// as reported by the host's token service.
type TokenStatus struct {
	ConnectionName             string `json:"connectionName,omitempty"`
	HasToken                   bool   `json:"hasToken"`
	ServiceProviderDisplayName string `json:"serviceProviderDisplayName,omitempty"`
}
