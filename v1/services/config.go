package services

import (
	"os"
	"strconv"
	"time"

	"github.com/opendisclosure/entity-backend/v1/models"
)

// LifecycleConfig carries every tunable the orchestration components need.
// It is built once and passed into each constructor rather than read from the
// environment at call sites.
type LifecycleConfig struct {
	// ExpireAfter is the role-specific window after which an unregistered
	// invitation no longer blocks new ones
	ExpireAfter map[models.Role]time.Duration
	// StaleVacancyWait is the role-specific deadline for filling a vacated
	// seat before the entity is demolished
	StaleVacancyWait map[models.Role]time.Duration
	// StaleVacancyGrace absorbs scheduler jitter on top of the wait
	StaleVacancyGrace time.Duration
	// PortalBaseURL is where application registration links point
	PortalBaseURL string
	// HostedSignupURL is where directory-hosted signup links point
	HostedSignupURL string
	// LinkSigningSecret signs registration links
	LinkSigningSecret string
}

// NewLifecycleConfig builds the configuration from the environment with
// workable defaults.
func NewLifecycleConfig() *LifecycleConfig {
	return &LifecycleConfig{
		ExpireAfter: map[models.Role]time.Duration{
			models.RoleSysAdmin:         envSeconds("INVITATION_EXPIRE_SYS_ADMIN_SECONDS", 7*24*3600),
			models.RoleEntityAdmin:      envSeconds("INVITATION_EXPIRE_RE_ADMIN_SECONDS", 7*24*3600),
			models.RoleAuthorizedInd:    envSeconds("INVITATION_EXPIRE_RE_AUTH_IND_SECONDS", 14*24*3600),
			models.RoleConsentingPerson: envSeconds("INVITATION_EXPIRE_CONSENTING_PERSON_SECONDS", 30*24*3600),
		},
		StaleVacancyWait: map[models.Role]time.Duration{
			models.RoleEntityAdmin:   envSeconds("STALE_VACANCY_RE_ADMIN_SECONDS", 14*24*3600),
			models.RoleAuthorizedInd: envSeconds("STALE_VACANCY_RE_AUTH_IND_SECONDS", 14*24*3600),
		},
		StaleVacancyGrace: envSeconds("STALE_VACANCY_GRACE_SECONDS", 3600),
		PortalBaseURL:     getEnvOrDefault("PORTAL_BASE_URL", "http://localhost:3000"),
		HostedSignupURL:   getEnvOrDefault("HOSTED_SIGNUP_URL", ""),
		LinkSigningSecret: getEnvOrDefault("LINK_SIGNING_SECRET", "dev-only-secret"),
	}
}

// ExpireAfterFor returns the expiration window for a role, falling back to
// the RE_AUTH_IND window when the role has no entry.
func (c *LifecycleConfig) ExpireAfterFor(role models.Role) time.Duration {
	if d, ok := c.ExpireAfter[role]; ok {
		return d
	}
	return c.ExpireAfter[models.RoleAuthorizedInd]
}

// StaleVacancyDelayFor returns the timer delay for a vacated role, grace
// buffer included.
func (c *LifecycleConfig) StaleVacancyDelayFor(role models.Role) time.Duration {
	wait, ok := c.StaleVacancyWait[role]
	if !ok {
		wait = 14 * 24 * time.Hour
	}
	return wait + c.StaleVacancyGrace
}

func envSeconds(key string, defaultSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
