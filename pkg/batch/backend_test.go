package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/speechflow/pkg/config"
)

func TestRegionEndpoint(t *testing.T) {
	assert.Equal(t, "https://eastus.api.cognitive.microsoft.com/speechtotext/v3.1", RegionEndpoint("eastus", ""))
	assert.Equal(t, "https://westus.api.cognitive.microsoft.com/speechtotext/v3.0", RegionEndpoint("westus", "v3.0"))
}

func TestBackendResolve(t *testing.T) {
	b := NewBackend("https://eastus.api.cognitive.microsoft.com/speechtotext/v3.1/", nil, nil, nil)

	tests := []struct {
		path string
		want string
	}{
		{"transcriptions", "https://eastus.api.cognitive.microsoft.com/speechtotext/v3.1/transcriptions"},
		{"/transcriptions/1", "https://eastus.api.cognitive.microsoft.com/speechtotext/v3.1/transcriptions/1"},
		{"/speechtotext/v3.1/transcriptions/1/files?skip=100", "https://eastus.api.cognitive.microsoft.com/speechtotext/v3.1/transcriptions/1/files?skip=100"},
		{"https://other.host/x?y=1", "https://other.host/x?y=1"},
	}
	for _, tt := range tests {
		got, err := b.resolve(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestNewAPIError(t *testing.T) {
	e := newAPIError(400, []byte(`{"code":"InvalidPayload","message":"bad"}`))
	assert.Equal(t, "InvalidPayload", e.Code)
	assert.Equal(t, "bad", e.Message)

	e = newAPIError(401, []byte(`{"error":{"code":"401","message":"Access denied"}}`))
	assert.Equal(t, "401", e.Code)
	assert.Equal(t, "Access denied", e.Message)

	e = newAPIError(502, []byte("upstream down\n"))
	assert.Equal(t, "upstream down", e.Message)
	assert.Contains(t, e.Error(), "status=502")
}

func TestNewAuthorizer(t *testing.T) {
	auth, err := NewAuthorizer(config.AzureConfig{SubscriptionKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "key", auth.Type())

	auth, err = NewAuthorizer(config.AzureConfig{Auth: "aad", TenantID: "t", ClientID: "c", ClientSecret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "aad", auth.Type())

	_, err = NewAuthorizer(config.AzureConfig{Auth: "basic"})
	assert.Error(t, err)
}
