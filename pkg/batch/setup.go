package batch

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/config"
	"github.com/z-wentao/speechflow/pkg/credentials"
)

// NewAuthorizer picks the credential configured for the speech resource.
func NewAuthorizer(cfg config.AzureConfig) (credentials.Authorizer, error) {
	switch cfg.Auth {
	case "", "key":
		return credentials.SubscriptionKey(cfg.SubscriptionKey), nil
	case "aad":
		if cfg.ClientSecret != "" {
			return credentials.NewAzureCredentialWithClientSecret(cfg.TenantID, cfg.ClientID, cfg.ClientSecret)
		}
		return credentials.NewAzureCredential()
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth)
	}
}

// NewClientFromConfig wires a Client for the configured region or endpoint.
func NewClientFromConfig(cfg config.AzureConfig, httpClient *http.Client, log *logrus.Entry) (*Client, error) {
	auth, err := NewAuthorizer(cfg)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = RegionEndpoint(cfg.Region, cfg.APIVersion)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	log.WithFields(logrus.Fields{"endpoint": endpoint, "auth": auth.Type()}).Debug("speech client configured")
	return NewClient(NewBackend(endpoint, auth, httpClient, log), log), nil
}
