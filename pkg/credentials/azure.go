package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

const (
	// CognitiveServicesScope is the AAD scope for speech and language resources.
	CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

	tokenRefreshBuffer = 5 * time.Minute
)

// AzureCredential authorizes requests with an Azure AD bearer token.
// Tokens are cached until shortly before they expire.
type AzureCredential struct {
	cred        azcore.TokenCredential
	mu          sync.RWMutex
	cachedToken *azcore.AccessToken
	now         func() time.Time
}

// NewAzureCredential uses the default credential chain (environment,
// managed identity, Azure CLI, ...).
func NewAzureCredential() (*AzureCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return NewAzureCredentialFromToken(cred), nil
}

// NewAzureCredentialWithClientSecret authenticates a service principal.
func NewAzureCredentialWithClientSecret(tenantID, clientID, clientSecret string) (*AzureCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return NewAzureCredentialFromToken(cred), nil
}

// NewAzureCredentialFromToken wraps an existing token credential.
func NewAzureCredentialFromToken(cred azcore.TokenCredential) *AzureCredential {
	return &AzureCredential{
		cred: cred,
		now:  time.Now,
	}
}

// Apply adds the bearer token to the request.
func (c *AzureCredential) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get Azure token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.Token)
	return nil
}

// Type returns "aad".
func (c *AzureCredential) Type() string {
	return "aad"
}

func (c *AzureCredential) fresh() bool {
	return c.cachedToken != nil && c.cachedToken.ExpiresOn.After(c.now().Add(tokenRefreshBuffer))
}

func (c *AzureCredential) getToken(ctx context.Context) (*azcore.AccessToken, error) {
	c.mu.RLock()
	if c.fresh() {
		token := c.cachedToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fresh() {
		return c.cachedToken, nil
	}

	token, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{CognitiveServicesScope},
	})
	if err != nil {
		return nil, err
	}

	c.cachedToken = &token
	return &token, nil
}
