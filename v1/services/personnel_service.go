package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opendisclosure/entity-backend/idp"
	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/opendisclosure/entity-backend/v1/repository"
)

// personnelContext is the loaded state a correction works against: the
// entity, its active users, and the resolved outgoing and acting parties.
type personnelContext struct {
	entity      *models.Entity
	activeUsers []models.User
	replacer    *models.User
	outgoing    *models.User
}

// CorrectionResult summarizes a completed personnel correction
type CorrectionResult struct {
	EntityID     string                   `json:"entityId"`
	RemovedEmail string                   `json:"removedEmail"`
	Invitation   *models.InvitationIssued `json:"invitation,omitempty"`
	TimerID      string                   `json:"timerId,omitempty"`
}

// PersonnelService replaces or removes an entity's representative. Steps run
// strictly in sequence; a failed step aborts what follows without rolling
// back what came before.
type PersonnelService struct {
	entities    *repository.EntityRepository
	users       *repository.UserRepository
	invitations *repository.InvitationRepository
	idp         idp.IdentityProviderAPI
	notifier    EmailNotifier
	scheduler   Scheduler
	admission   *AdmissionService
	demolition  *DemolitionService
	cfg         *LifecycleConfig
}

// NewPersonnelService creates a new personnel-correction service
func NewPersonnelService(
	entities *repository.EntityRepository,
	users *repository.UserRepository,
	invitations *repository.InvitationRepository,
	directory idp.IdentityProviderAPI,
	notifier EmailNotifier,
	scheduler Scheduler,
	admission *AdmissionService,
	demolition *DemolitionService,
	cfg *LifecycleConfig,
) *PersonnelService {
	return &PersonnelService{
		entities:    entities,
		users:       users,
		invitations: invitations,
		idp:         directory,
		notifier:    notifier,
		scheduler:   scheduler,
		admission:   admission,
		demolition:  demolition,
		cfg:         cfg,
	}
}

// CorrectPersonnel removes the representative identified by
// replaceableEmail, optionally invites replacementEmail into the vacated
// role, and arms a stale-vacancy timer either way.
func (s *PersonnelService) CorrectPersonnel(ctx context.Context, req *models.CorrectPersonnelRequest) (*CorrectionResult, error) {
	pc, err := s.loadPersonnel(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &CorrectionResult{
		EntityID:     pc.entity.EntityID,
		RemovedEmail: pc.outgoing.Email,
	}

	// Step 1: deactivate the outgoing record and drop their open invitations
	if err := s.users.Update(ctx, pc.outgoing.Email, pc.entity.EntityID, map[string]interface{}{
		"active": models.No,
	}); err != nil {
		return nil, err
	}
	if err := s.invitations.DeleteByEmailAndEntity(ctx, pc.outgoing.Email, pc.entity.EntityID); err != nil {
		return nil, err
	}

	// Step 2: delete the outgoing directory account
	if pc.outgoing.Sub != "" {
		if err := s.idp.DeleteUser(ctx, pc.outgoing.Sub); err != nil {
			return nil, fmt.Errorf("failed to delete directory account for %s: %w", pc.outgoing.Email, err)
		}
	}

	// Steps 3 and 4: notifications are fire-observe-log; a bounced email
	// never unwinds the removal
	s.notifyRemoved(ctx, pc)
	s.notifyPeers(ctx, pc)

	// Step 5: invite the replacement into the vacated role
	if req.ReplacementEmail != "" {
		issued, err := s.admission.InviteUser(ctx, &models.InviteUserRequest{
			Email:       req.ReplacementEmail,
			Role:        pc.outgoing.Role,
			EntityID:    pc.entity.EntityID,
			InviterRole: models.RoleSysAdmin,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("replacement invitation failed: %w", err)
		}
		result.Invitation = issued
	}

	// Step 6: arm the stale-vacancy timer regardless of whether a
	// replacement was invited
	timerID, err := s.armVacancyTimer(ctx, pc.entity.EntityID, pc.outgoing.Role)
	if err != nil {
		return nil, err
	}
	result.TimerID = timerID

	slog.Info("Personnel corrected",
		"entityId", pc.entity.EntityID,
		"removed", pc.outgoing.Email,
		"replacementInvited", req.ReplacementEmail != "")
	return result, nil
}

// CheckStaleVacancy is the timer callback: when the vacated seat is still
// unfilled past its deadline, the entity comes down.
func (s *PersonnelService) CheckStaleVacancy(ctx context.Context, entityID string, role models.Role) (*models.DemolitionRecord, error) {
	entity, err := s.entities.Get(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		// Already demolished; nothing to check
		return nil, nil
	}

	users, err := s.users.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Role == role && users[i].IsActive() {
			slog.Info("Vacancy filled before deadline", "entityId", entityID, "role", role)
			return nil, nil
		}
	}

	slog.Warn("Stale vacancy detected, demolishing entity", "entityId", entityID, "role", role)
	return s.demolition.Demolish(ctx, entityID, false)
}

// loadPersonnel builds the correction context and validates the disallowed
// combinations before anything is mutated.
func (s *PersonnelService) loadPersonnel(ctx context.Context, req *models.CorrectPersonnelRequest) (*personnelContext, error) {
	if req.EntityID == "" {
		return nil, models.NewValidationError("entity_id", req)
	}
	if req.ReplacerEmail == "" {
		return nil, models.NewValidationError("replacerEmail", req)
	}
	if req.ReplaceableEmail == "" {
		return nil, models.NewValidationError("replaceableEmail", req)
	}
	if req.ReplacementEmail != "" && req.ReplacementEmail == req.ReplaceableEmail {
		return nil, models.Reject("the replacement email cannot equal the email being replaced")
	}

	entity, err := s.entities.Get(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, models.ErrEntityNotFound
	}

	all, err := s.users.ListByEntity(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}

	pc := &personnelContext{entity: entity}
	for i := range all {
		if all[i].IsActive() {
			pc.activeUsers = append(pc.activeUsers, all[i])
		}
		if all[i].Email == req.ReplaceableEmail {
			pc.outgoing = &all[i]
		}
	}
	for i := range pc.activeUsers {
		if pc.activeUsers[i].Email == req.ReplacerEmail {
			pc.replacer = &pc.activeUsers[i]
		}
	}

	if pc.outgoing == nil {
		return nil, models.Reject("no user with email %s at entity %s", req.ReplaceableEmail, req.EntityID)
	}
	if pc.replacer == nil {
		return nil, models.Reject("%s is not an active member of entity %s and cannot act as replacer", req.ReplacerEmail, req.EntityID)
	}
	return pc, nil
}

// notifyRemoved tells the outgoing representative they were removed
func (s *PersonnelService) notifyRemoved(ctx context.Context, pc *personnelContext) {
	if models.EmailIsMasked(pc.outgoing.Email) {
		return
	}
	subject := fmt.Sprintf("You have been removed from %s", pc.entity.EntityName)
	body := fmt.Sprintf(
		"Your role %s at %s has been removed. Your account with the platform for this entity is closed.",
		pc.outgoing.Role, pc.entity.EntityName)
	if err := s.notifier.Send(ctx, pc.outgoing.Email, subject, body); err != nil {
		slog.Error("Failed to notify removed representative",
			"entityId", pc.entity.EntityID,
			"recipient", pc.outgoing.Email,
			"error", err)
	}
}

// notifyPeers tells every other active member about the change, excluding
// the actor and the outgoing representative.
func (s *PersonnelService) notifyPeers(ctx context.Context, pc *personnelContext) {
	subject := fmt.Sprintf("Personnel change at %s", pc.entity.EntityName)
	body := fmt.Sprintf(
		"%s (%s) is no longer a representative of %s. A replacement may have been invited.",
		pc.outgoing.Fullname, pc.outgoing.Role, pc.entity.EntityName)
	for i := range pc.activeUsers {
		peer := &pc.activeUsers[i]
		if peer.Email == pc.replacer.Email || peer.Email == pc.outgoing.Email {
			continue
		}
		if models.EmailIsMasked(peer.Email) {
			continue
		}
		if err := s.notifier.Send(ctx, peer.Email, subject, body); err != nil {
			slog.Error("Failed to notify peer of personnel change",
				"entityId", pc.entity.EntityID,
				"recipient", peer.Email,
				"error", err)
		}
	}
}

// armVacancyTimer schedules the stale-vacancy check for the vacated role,
// grace buffer included.
func (s *PersonnelService) armVacancyTimer(ctx context.Context, entityID string, role models.Role) (string, error) {
	delay := s.cfg.StaleVacancyDelayFor(role)
	payload := map[string]interface{}{
		"entityId": entityID,
		"role":     string(role),
	}
	name := fmt.Sprintf("stale-vacancy-%s-%s", entityID, role)
	description := fmt.Sprintf("Demolish %s if the %s seat is still unfilled after %s", entityID, role, delay)
	return s.scheduler.Arm(ctx, delay, models.TaskCheckStaleVacancy, payload, name, description)
}
