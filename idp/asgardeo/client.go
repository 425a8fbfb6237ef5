package asgardeo

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Client talks SCIM2 to an Asgardeo organization. The embedded HTTP client
// refreshes its client-credentials token transparently.
type Client struct {
	BaseURL     string
	OAuthConfig *clientcredentials.Config
	Client      *http.Client
}

// NewClient builds a SCIM2 client. Token refresh requests are issued under
// ctx, so cancelling it retires the client.
func NewClient(ctx context.Context, baseURL, clientID, clientSecret string, scopes []string) *Client {
	oauthConfig := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/oauth2/token",
		Scopes:       scopes,
	}

	httpClient := oauthConfig.Client(ctx)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		BaseURL:     baseURL,
		OAuthConfig: oauthConfig,
		Client:      httpClient,
	}
}
