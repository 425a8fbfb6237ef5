package idpfactory

import (
	"context"
	"fmt"

	"github.com/opendisclosure/entity-backend/idp"
	"github.com/opendisclosure/entity-backend/idp/asgardeo"
)

// FactoryConfig selects and configures an identity directory implementation.
type FactoryConfig struct {
	ProviderType idp.ProviderType
	BaseURL      string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewIdpAPIProvider builds the directory client for the configured provider.
// The context governs the client's token refresh lifetime.
func NewIdpAPIProvider(ctx context.Context, cfg FactoryConfig) (idp.IdentityProviderAPI, error) {
	switch cfg.ProviderType {
	case idp.ProviderAsgardeo:
		return asgardeo.NewClient(ctx, cfg.BaseURL, cfg.ClientID, cfg.ClientSecret, cfg.Scopes), nil
	default:
		return nil, fmt.Errorf("unsupported identity provider type %q", cfg.ProviderType)
	}
}
