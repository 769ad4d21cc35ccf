// Package auth resolves the bearer token used for calls to the Stock and
// Logistics services.
package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jcmexdev/ecommerce-checkout/internal/pkg/reqctx"
)

// Resolver returns the end user's token when the request carries one and
// falls back to the service credential otherwise.
type Resolver struct {
	service oauth2.TokenSource
}

// NewResolver builds a Resolver. service may be nil, in which case
// anonymous requests go out without a token.
func NewResolver(service oauth2.TokenSource) *Resolver {
	return &Resolver{service: service}
}

// Token matches httpclient.TokenProvider.
func (r *Resolver) Token(ctx context.Context) (string, error) {
	if tok := reqctx.IdentityFrom(ctx).Token; tok != "" {
		return tok, nil
	}
	if r.service == nil {
		return "", nil
	}
	t, err := r.service.Token()
	if err != nil {
		return "", fmt.Errorf("auth: service token: %w", err)
	}
	return t.AccessToken, nil
}

type ServiceCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// Leeway refreshes the cached token this long before it expires.
	Leeway time.Duration
}

// NewServiceTokenSource returns a cached client-credentials token source.
func NewServiceTokenSource(ctx context.Context, creds ServiceCredentials) oauth2.TokenSource {
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		Scopes:       creds.Scopes,
	}
	leeway := creds.Leeway
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	return oauth2.ReuseTokenSourceWithExpiry(nil, cfg.TokenSource(ctx), leeway)
}
