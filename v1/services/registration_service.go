package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/opendisclosure/entity-backend/idp"
	"github.com/opendisclosure/entity-backend/pkg/monitoring"
	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/opendisclosure/entity-backend/v1/repository"
)

// RegistrationService advances an invitation through acknowledge and
// register, with idempotent re-entry on both.
type RegistrationService struct {
	entities    *repository.EntityRepository
	users       *repository.UserRepository
	invitations *repository.InvitationRepository
	idp         idp.IdentityProviderAPI
	now         func() time.Time
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(
	entities *repository.EntityRepository,
	users *repository.UserRepository,
	invitations *repository.InvitationRepository,
	directory idp.IdentityProviderAPI,
) *RegistrationService {
	return &RegistrationService{
		entities:    entities,
		users:       users,
		invitations: invitations,
		idp:         directory,
		now:         time.Now,
	}
}

// Lookup finds an invitation by code. Codes that traveled through
// quoted-printable email bodies can arrive with a leading "=" rewritten as
// the literal "3D"; when the raw code misses and starts with that artifact,
// the lookup retries without it.
func (s *RegistrationService) Lookup(ctx context.Context, code string) (*models.Invitation, error) {
	inv, err := s.invitations.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv == nil && strings.HasPrefix(code, "3D") {
		inv, err = s.invitations.Get(ctx, strings.TrimPrefix(code, "3D"))
		if err != nil {
			return nil, err
		}
	}
	if inv == nil {
		return nil, models.Unauthorized("unknown invitation code")
	}
	return inv, nil
}

// Acknowledge records that the invitee acknowledged the privacy policy.
// A second call is a success without a write.
func (s *RegistrationService) Acknowledge(ctx context.Context, code string) (*models.Invitation, error) {
	inv, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv.Retracted() {
		return nil, models.Unauthorized("invitation was retracted")
	}
	if inv.Acknowledged() {
		return inv, nil
	}

	now := s.now()
	if err := s.invitations.Update(ctx, inv.Code, map[string]interface{}{
		"acknowledged_timestamp": &now,
	}); err != nil {
		return nil, err
	}
	inv.AcknowledgedTimestamp = &now
	return inv, nil
}

// Register completes the invitation: the masked email is replaced with the
// real one and the invitee's details are written. Re-registering an already
// registered code is a success without a write.
func (s *RegistrationService) Register(ctx context.Context, req *models.RegisterRequest) (*models.Invitation, error) {
	if req.Email == "" {
		return nil, models.NewValidationError("email", req)
	}
	if req.Fullname == "" {
		return nil, models.NewValidationError("fullname", req)
	}

	inv, err := s.Lookup(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if inv.Retracted() {
		return nil, models.Unauthorized("invitation was retracted")
	}
	if inv.Registered() {
		return inv, nil
	}
	if !inv.Acknowledged() {
		return nil, models.Unauthorized("unauthorized, policy not acknowledged")
	}

	// An entity-creating invitation issued without a target entity parks in
	// the waiting room until this moment, when the registrant names the
	// entity they will administer.
	entityID := inv.EntityID
	if inv.Role.CreatesEntity() && (entityID == "" || entityID == models.EntityIDWaitingRoom) {
		entityID, err = s.createEntityFor(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	updates := map[string]interface{}{
		"email":                req.Email,
		"registered_timestamp": &now,
	}
	if entityID != inv.EntityID {
		updates["entity_id"] = entityID
	}
	if err := s.invitations.Update(ctx, inv.Code, updates); err != nil {
		return nil, err
	}
	inv.Email = req.Email
	inv.EntityID = entityID
	inv.RegisteredTimestamp = &now

	s.admitUser(ctx, inv, req)

	slog.Info("Invitation registered",
		"code", inv.Code,
		"role", inv.Role,
		"entityId", inv.EntityID)
	return inv, nil
}

// Retract permanently disqualifies an invitation. Registered invitations are
// past the point of retraction.
func (s *RegistrationService) Retract(ctx context.Context, code string) (*models.Invitation, error) {
	inv, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv.Registered() {
		return nil, models.Reject("invitation %s is already registered and cannot be retracted", inv.Code)
	}
	if inv.Retracted() {
		return inv, nil
	}

	now := s.now()
	if err := s.invitations.Update(ctx, inv.Code, map[string]interface{}{
		"retracted_timestamp": &now,
	}); err != nil {
		return nil, err
	}
	inv.RetractedTimestamp = &now
	return inv, nil
}

// createEntityFor verifies the proposed name is unused, case-insensitively,
// and creates the entity the registrant will administer.
func (s *RegistrationService) createEntityFor(ctx context.Context, req *models.RegisterRequest) (string, error) {
	if req.EntityName == "" {
		return "", models.NewValidationError("entityName", req)
	}
	existing, err := s.entities.GetByName(ctx, req.EntityName)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", models.Reject("entity name %q is already in use", req.EntityName)
	}
	entity := &models.Entity{EntityName: req.EntityName, Active: models.Yes}
	if err := s.entities.Create(ctx, entity); err != nil {
		return "", err
	}
	return entity.EntityID, nil
}

// admitUser writes the active user record for the registrant. A registrant
// who never went through hosted signup has no directory account yet; one is
// provisioned through the askPassword flow, which makes the directory
// deliver credentials out-of-band.
func (s *RegistrationService) admitUser(ctx context.Context, inv *models.Invitation, req *models.RegisterRequest) {
	entityID := inv.EntityID
	if entityID == "" {
		entityID = models.EntityIDWaitingRoom
	}

	existing, err := s.users.Get(ctx, req.Email, entityID)
	if err != nil {
		slog.Warn("Could not check for existing user record", "email", req.Email, "error", err)
		return
	}
	if existing != nil {
		return
	}

	account, err := s.idp.GetUserByUsername(ctx, "DEFAULT/"+req.Email)
	if err != nil {
		slog.Info("No directory account for registrant, provisioning one",
			"email", req.Email)
		account, err = s.idp.CreateUser(ctx, &idp.User{
			Email:       req.Email,
			Fullname:    req.Fullname,
			PhoneNumber: req.PhoneNumber,
			Role:        string(inv.Role),
		})
		monitoring.RecordDirectoryCall(ctx, "CreateUser", err)
		if err != nil {
			slog.Error("Failed to provision directory account for registrant",
				"email", req.Email, "error", err)
			return
		}
	}

	user := &models.User{
		Email:       req.Email,
		EntityID:    entityID,
		Role:        inv.Role,
		Sub:         account.Sub,
		Active:      models.Yes,
		Fullname:    req.Fullname,
		Title:       req.Title,
		PhoneNumber: account.PhoneNumber,
	}
	if err := s.users.Create(ctx, user); err != nil {
		slog.Error("Failed to create user record for registrant", "email", req.Email, "error", err)
	}
}
