package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/skillflow/types"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		display string
		want    OAuthProvider
	}{
		{"Azure Active Directory", ProviderAzureAD},
		{"Azure Active Directory v2", ProviderAzureAD},
		{"Google", ProviderGoogle},
		{"google", ProviderGoogle},
		{"Todoist", ProviderTodoist},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.display)
		require.NoError(t, err, tt.display)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseProvider_Unknown(t *testing.T) {
	_, err := ParseProvider("GitHub")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUnknownProvider, types.GetErrorCode(err))
}

func TestConnection_Provider(t *testing.T) {
	c := Connection{Name: "AzureAD", ServiceProviderDisplayName: "Azure Active Directory v2"}
	p, err := c.Provider()
	require.NoError(t, err)
	assert.Equal(t, ProviderAzureAD, p)
}
