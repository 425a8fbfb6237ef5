package services

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opendisclosure/entity-backend/v1/models"
)

// LinkBuilder produces the signed registration link embedded in an
// invitation email. Hosted and portal links differ only in where the signed
// token lands.
type LinkBuilder interface {
	BuildLink(inv *models.Invitation) (string, error)
}

// registrationClaims is the signed payload carried by a registration link
type registrationClaims struct {
	Code     string      `json:"code"`
	Role     models.Role `json:"role"`
	EntityID string      `json:"entityId,omitempty"`
	jwt.RegisteredClaims
}

func signRegistrationToken(inv *models.Invitation, secret string, ttl time.Duration) (string, error) {
	claims := registrationClaims{
		Code:     inv.Code,
		Role:     inv.Role,
		EntityID: inv.EntityID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign registration token: %w", err)
	}
	return signed, nil
}

// ParseRegistrationToken verifies a signed link token and returns the
// invitation code it carries.
func ParseRegistrationToken(tokenString, secret string) (string, error) {
	var claims registrationClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse registration token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid registration token")
	}
	return claims.Code, nil
}

// PortalLinkBuilder points invitees at the application registration page
type PortalLinkBuilder struct {
	baseURL string
	secret  string
	ttl     time.Duration
}

// NewPortalLinkBuilder creates a portal link builder
func NewPortalLinkBuilder(cfg *LifecycleConfig) *PortalLinkBuilder {
	return &PortalLinkBuilder{
		baseURL: cfg.PortalBaseURL,
		secret:  cfg.LinkSigningSecret,
		ttl:     cfg.ExpireAfterFor(models.RoleAuthorizedInd),
	}
}

func (b *PortalLinkBuilder) BuildLink(inv *models.Invitation) (string, error) {
	token, err := signRegistrationToken(inv, b.secret, b.ttl)
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/register?token=%s", b.baseURL, url.QueryEscape(token))
	if inv.SignupParameter != "" {
		link += "&action=" + url.QueryEscape(inv.SignupParameter)
	}
	return link, nil
}

// HostedLinkBuilder points invitees at the identity directory's own signup
// page, carrying the signed token as state.
type HostedLinkBuilder struct {
	signupURL string
	secret    string
	ttl       time.Duration
}

// NewHostedLinkBuilder creates a hosted link builder
func NewHostedLinkBuilder(cfg *LifecycleConfig) *HostedLinkBuilder {
	return &HostedLinkBuilder{
		signupURL: cfg.HostedSignupURL,
		secret:    cfg.LinkSigningSecret,
		ttl:       cfg.ExpireAfterFor(models.RoleAuthorizedInd),
	}
}

func (b *HostedLinkBuilder) BuildLink(inv *models.Invitation) (string, error) {
	if b.signupURL == "" {
		return "", fmt.Errorf("hosted signup URL not configured")
	}
	token, err := signRegistrationToken(inv, b.secret, b.ttl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?state=%s", b.signupURL, url.QueryEscape(token)), nil
}
