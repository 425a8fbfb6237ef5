package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opendisclosure/entity-backend/idp"
	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/opendisclosure/entity-backend/v1/repository"
)

// AdmissionService decides whether a candidate invitation is legal and, when
// it is, persists the invitation and returns a signed registration link.
type AdmissionService struct {
	entities    *repository.EntityRepository
	users       *repository.UserRepository
	invitations *repository.InvitationRepository
	idp         idp.IdentityProviderAPI
	notifier    EmailNotifier
	cfg         *LifecycleConfig
	defaultLink LinkBuilder
	now         func() time.Time
}

// NewAdmissionService creates a new admission-control service
func NewAdmissionService(
	entities *repository.EntityRepository,
	users *repository.UserRepository,
	invitations *repository.InvitationRepository,
	directory idp.IdentityProviderAPI,
	notifier EmailNotifier,
	cfg *LifecycleConfig,
) *AdmissionService {
	return &AdmissionService{
		entities:    entities,
		users:       users,
		invitations: invitations,
		idp:         directory,
		notifier:    notifier,
		cfg:         cfg,
		defaultLink: NewPortalLinkBuilder(cfg),
		now:         time.Now,
	}
}

// InviteUser runs the admission rules in order and either issues the
// invitation or returns a structured rejection. The link builder differs for
// hosted versus application registration links; nil selects the portal
// builder.
//
// The conflict check is read-then-decide-then-write with no locking: two
// concurrent attempts for the same (entity, role) can both pass it. The
// duplicate is tolerated rather than serialized.
func (s *AdmissionService) InviteUser(ctx context.Context, req *models.InviteUserRequest, link LinkBuilder) (*models.InvitationIssued, error) {
	if link == nil {
		link = s.defaultLink
	}
	if !req.Role.Valid() {
		return nil, models.NewValidationError("role", req)
	}
	if req.Email == "" {
		return nil, models.NewValidationError("email", req)
	}

	// Rule 1: an RE_ADMIN may only invite RE_AUTH_IND
	if req.InviterRole == models.RoleEntityAdmin && req.Role != models.RoleAuthorizedInd {
		return nil, models.Reject("an %s may only invite %s", models.RoleEntityAdmin, models.RoleAuthorizedInd)
	}

	// Rule 2: only a SYS_ADMIN may invite into the waiting room
	if req.InviterRole == models.RoleEntityAdmin && req.EntityID == models.EntityIDWaitingRoom {
		return nil, models.Reject("only a %s may invite into the waiting room", models.RoleSysAdmin)
	}

	// Rule 3: a named entity must resolve and be active
	entityID := req.EntityID
	if entityID != "" {
		entity, err := s.entities.Get(ctx, entityID)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			return nil, models.Reject("entity %s does not exist", entityID)
		}
		if !entity.IsActive() {
			return nil, models.Reject("entity %s is not active", entityID)
		}
	}

	var inviterEmail string
	if req.InviterRole == models.RoleEntityAdmin {
		var err error
		inviterEmail, err = s.resolveInviterEmail(ctx, req.InviterSub)
		if err != nil {
			return nil, err
		}

		// Rule 4: with no entity named, the inviter's own active membership
		// decides it, and only an unambiguous one will do
		if entityID == "" {
			entityID, err = s.resolveInviterEntity(ctx, inviterEmail)
			if err != nil {
				return nil, err
			}
		}

		// Rule 5: the inviter must be an active member of the target entity
		membership, err := s.users.Get(ctx, inviterEmail, entityID)
		if err != nil {
			return nil, err
		}
		if membership == nil || !membership.IsActive() {
			return nil, models.Reject("inviter is not an active member of entity %s", entityID)
		}
	}
	if entityID == "" {
		entityID = models.EntityIDWaitingRoom
	}

	// Rule 6: a candidate who already holds an active account was already
	// admitted
	existing, err := s.users.Get(ctx, req.Email, entityID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsActive() {
		return nil, models.Reject("%s has already accepted an invitation at entity %s", req.Email, entityID)
	}

	// Rule 7: pending-invitation conflict check
	if err := s.checkConflicts(ctx, entityID, req.Role); err != nil {
		return nil, err
	}

	// Rule 8: issue. The code doubles as the masked email until registration
	sent := s.now()
	inv := &models.Invitation{
		Code:            uuid.New().String(),
		Role:            req.Role,
		EntityID:        entityID,
		SentTimestamp:   &sent,
		SignupParameter: req.SignupParameter,
	}
	signedLink, err := link.BuildLink(inv)
	if err != nil {
		return nil, err
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.sendInvitationEmail(ctx, req.Email, inv, signedLink)

	slog.Info("Invitation issued",
		"code", inv.Code,
		"role", inv.Role,
		"entityId", inv.EntityID)

	return &models.InvitationIssued{Code: inv.Code, Link: signedLink}, nil
}

// resolveInviterEmail recovers the inviter's email from their directory
// account reference.
func (s *AdmissionService) resolveInviterEmail(ctx context.Context, inviterSub string) (string, error) {
	if inviterSub == "" {
		return "", models.Reject("inviter identity is required for %s invitations", models.RoleEntityAdmin)
	}
	info, err := s.idp.GetUser(ctx, inviterSub)
	if err != nil {
		return "", fmt.Errorf("failed to resolve inviter in identity directory: %w", err)
	}
	if info.Email == "" {
		return "", models.Reject("inviter account carries no email")
	}
	return info.Email, nil
}

// resolveInviterEntity finds the single entity the inviter is an active
// member of. Zero or several matches are both rejections.
func (s *AdmissionService) resolveInviterEntity(ctx context.Context, inviterEmail string) (string, error) {
	memberships, err := s.users.ListByEmail(ctx, inviterEmail)
	if err != nil {
		return "", err
	}
	var active []models.User
	for _, m := range memberships {
		if m.IsActive() && m.EntityID != models.EntityIDWaitingRoom {
			active = append(active, m)
		}
	}
	switch len(active) {
	case 0:
		return "", models.Reject("inviter %s has no active entity membership", inviterEmail)
	case 1:
		return active[0].EntityID, nil
	default:
		return "", models.Reject("inviter %s is active at more than one entity; name the entity explicitly", inviterEmail)
	}
}

// checkConflicts blocks a new invitation while a live one for the same
// (entity, role) is outstanding. The waiting room and the RE_AUTH_IND role
// allow any number of concurrent invitees.
func (s *AdmissionService) checkConflicts(ctx context.Context, entityID string, role models.Role) error {
	if entityID == models.EntityIDWaitingRoom || role == models.RoleAuthorizedInd {
		return nil
	}

	invs, err := s.invitations.ListByEntity(ctx, entityID)
	if err != nil {
		return err
	}

	now := s.now()
	window := s.cfg.ExpireAfterFor(role)
	for i := range invs {
		inv := &invs[i]
		if inv.Role != role {
			continue
		}
		if inv.Retracted() {
			continue
		}
		if inv.ExpiredAt(now, window) {
			continue
		}
		if s.invitedUserDeactivated(ctx, inv) {
			continue
		}
		return models.Reject("entity %s has outstanding invitations for role %s", entityID, role)
	}
	return nil
}

// invitedUserDeactivated reports whether the invitation's user exists at the
// entity but is no longer active. Unregistered invitations still carry the
// masked email, so the lookup finds nothing and the invitation keeps
// blocking.
func (s *AdmissionService) invitedUserDeactivated(ctx context.Context, inv *models.Invitation) bool {
	user, err := s.users.Get(ctx, inv.Email, inv.EntityID)
	if err != nil {
		slog.Warn("Conflict check could not read invited user", "code", inv.Code, "error", err)
		return false
	}
	return user != nil && !user.IsActive()
}

// sendInvitationEmail delivers the registration link. A delivery failure is
// logged but does not unwind the persisted invitation.
func (s *AdmissionService) sendInvitationEmail(ctx context.Context, to string, inv *models.Invitation, link string) {
	subject := fmt.Sprintf("Invitation to register as %s", inv.Role)
	body := fmt.Sprintf(
		"You have been invited to register with role %s.\n\nFollow this link to begin:\n%s\n\nThis invitation expires if unused.",
		inv.Role, link)
	if err := s.notifier.Send(ctx, to, subject, body); err != nil {
		slog.Error("Failed to send invitation email", "code", inv.Code, "error", err)
	}
}
