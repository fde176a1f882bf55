package credentials

import (
	"context"
	"fmt"
	"net/http"
)

// SubscriptionKeyHeader is the header Cognitive Services reads the resource key from.
const SubscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

// Authorizer 请求鉴权接口
type Authorizer interface {
	Apply(ctx context.Context, req *http.Request) error
	Type() string
}

// SubscriptionKey authorizes requests with a resource subscription key.
type SubscriptionKey string

// Apply sets the subscription key header.
func (k SubscriptionKey) Apply(_ context.Context, req *http.Request) error {
	if k == "" {
		return fmt.Errorf("subscription key is empty")
	}
	req.Header.Set(SubscriptionKeyHeader, string(k))
	return nil
}

// Type returns "key".
func (k SubscriptionKey) Type() string {
	return "key"
}
