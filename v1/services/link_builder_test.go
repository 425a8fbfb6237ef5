package services

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInvitation() *models.Invitation {
	sent := time.Now()
	return &models.Invitation{
		Code:          "code-abc",
		Email:         "code-abc",
		Role:          models.RoleAuthorizedInd,
		EntityID:      "ent_acme",
		SentTimestamp: &sent,
	}
}

func TestPortalLink_TokenRoundTrip(t *testing.T) {
	cfg := testConfig()
	builder := NewPortalLinkBuilder(cfg)

	link, err := builder.BuildLink(testInvitation())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, cfg.PortalBaseURL+"/register?token="))

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	code, err := ParseRegistrationToken(token, cfg.LinkSigningSecret)
	require.NoError(t, err)
	assert.Equal(t, "code-abc", code)
}

func TestPortalLink_CarriesSignupParameter(t *testing.T) {
	builder := NewPortalLinkBuilder(testConfig())
	inv := testInvitation()
	inv.SignupParameter = "amend"

	link, err := builder.BuildLink(inv)
	require.NoError(t, err)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "amend", parsed.Query().Get("action"))
}

func TestParseRegistrationToken_RejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	builder := NewPortalLinkBuilder(cfg)

	link, err := builder.BuildLink(testInvitation())
	require.NoError(t, err)
	parsed, err := url.Parse(link)
	require.NoError(t, err)

	_, err = ParseRegistrationToken(parsed.Query().Get("token"), "some-other-secret")
	assert.Error(t, err)
}

func TestHostedLink_UsesStateParameter(t *testing.T) {
	cfg := testConfig()
	builder := NewHostedLinkBuilder(cfg)

	link, err := builder.BuildLink(testInvitation())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, cfg.HostedSignupURL+"?state="))
}

func TestHostedLink_RequiresSignupURL(t *testing.T) {
	cfg := testConfig()
	cfg.HostedSignupURL = ""
	builder := NewHostedLinkBuilder(cfg)

	_, err := builder.BuildLink(testInvitation())
	assert.Error(t, err)
}
