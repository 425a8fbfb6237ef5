package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opendisclosure/entity-backend/idp"
	"github.com/opendisclosure/entity-backend/pkg/monitoring"
	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/opendisclosure/entity-backend/v1/repository"
	"gorm.io/gorm"
)

// DemolitionService removes all trace of an entity: its users, its
// invitations, and the entity row itself, followed by best-effort cleanup of
// the identity directory and cancellation notices.
type DemolitionService struct {
	db          *gorm.DB
	entities    *repository.EntityRepository
	users       *repository.UserRepository
	invitations *repository.InvitationRepository
	idp         idp.IdentityProviderAPI
	notifier    EmailNotifier
}

// NewDemolitionService creates a new demolition service
func NewDemolitionService(
	db *gorm.DB,
	entities *repository.EntityRepository,
	users *repository.UserRepository,
	invitations *repository.InvitationRepository,
	directory idp.IdentityProviderAPI,
	notifier EmailNotifier,
) *DemolitionService {
	return &DemolitionService{
		db:          db,
		entities:    entities,
		users:       users,
		invitations: invitations,
		idp:         directory,
		notifier:    notifier,
	}
}

// Demolish cascades the removal of an entity. The datastore deletes run as
// one all-or-nothing transaction; directory deletions and cancellation
// notices are best-effort afterwards. Running it twice is safe: the second
// run finds nothing to delete. With dryRun set, the transaction input is
// built and returned but never submitted.
func (s *DemolitionService) Demolish(ctx context.Context, entityID string, dryRun bool) (*models.DemolitionRecord, error) {
	if entityID == "" {
		return nil, models.NewValidationError("entity_id", entityID)
	}
	if entityID == models.EntityIDWaitingRoom {
		return nil, models.Reject("the waiting room cannot be demolished")
	}

	entity, err := s.entities.Get(ctx, entityID)
	if err != nil {
		return nil, err
	}

	// Snapshot the users before the transaction deletes them; the directory
	// and notification steps need the rows after they are gone.
	deletedUsers, err := s.users.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	invitations, err := s.invitations.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	record := &models.DemolitionRecord{
		EntityID:     entityID,
		DryRun:       dryRun,
		Planned:      buildPlan(entityID, entity != nil, deletedUsers, invitations),
		DeletedUsers: deletedUsers,
	}

	if dryRun {
		return record, nil
	}

	// Step 1: one all-or-nothing datastore transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entity_id = ?", entityID).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("failed to delete users: %w", err)
		}
		if err := tx.Where("entity_id = ?", entityID).Delete(&models.Invitation{}).Error; err != nil {
			return fmt.Errorf("failed to delete invitations: %w", err)
		}
		if err := tx.Delete(&models.Entity{}, "entity_id = ?", entityID).Error; err != nil {
			return fmt.Errorf("failed to delete entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("demolition transaction failed for entity %s: %w", entityID, err)
	}

	// Step 2: directory accounts, each attempted independently
	for i := range deletedUsers {
		user := &deletedUsers[i]
		if user.Sub == "" {
			continue
		}
		err := s.idp.DeleteUser(ctx, user.Sub)
		monitoring.RecordDirectoryCall(ctx, "DeleteUser", err)
		if err != nil {
			slog.Error("Failed to delete directory account during demolition",
				"entityId", entityID,
				"sub", user.Sub,
				"error", err)
		}
	}

	// Step 3: cancellation notices, skipping rows whose email column still
	// holds a masked invitation code
	entityName := entityID
	if entity != nil {
		entityName = entity.EntityName
	}
	for i := range deletedUsers {
		user := &deletedUsers[i]
		if models.EmailIsMasked(user.Email) {
			continue
		}
		subject := fmt.Sprintf("Registration cancelled: %s", entityName)
		body := fmt.Sprintf(
			"The entity %s has been removed from the platform. Your registration with it is cancelled.",
			entityName)
		if err := s.notifier.Send(ctx, user.Email, subject, body); err != nil {
			slog.Error("Failed to send cancellation notice",
				"entityId", entityID,
				"recipient", user.Email,
				"error", err)
		}
	}

	slog.Info("Entity demolished",
		"entityId", entityID,
		"deletedUsers", len(deletedUsers),
		"deletedInvitations", len(invitations))
	return record, nil
}

// buildPlan lists every delete the transaction will contain
func buildPlan(entityID string, entityExists bool, users []models.User, invitations []models.Invitation) []models.PlannedDelete {
	plan := make([]models.PlannedDelete, 0, len(users)+len(invitations)+1)
	for i := range users {
		plan = append(plan, models.PlannedDelete{
			Table: models.User{}.TableName(),
			Key:   fmt.Sprintf("email=%s,entity_id=%s", users[i].Email, entityID),
		})
	}
	for i := range invitations {
		plan = append(plan, models.PlannedDelete{
			Table: models.Invitation{}.TableName(),
			Key:   fmt.Sprintf("code=%s", invitations[i].Code),
		})
	}
	if entityExists {
		plan = append(plan, models.PlannedDelete{
			Table: models.Entity{}.TableName(),
			Key:   fmt.Sprintf("entity_id=%s", entityID),
		})
	}
	return plan
}
