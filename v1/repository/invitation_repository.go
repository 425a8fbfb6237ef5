package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/opendisclosure/entity-backend/v1/models"
	"gorm.io/gorm"
)

// InvitationRepository provides per-record access to invitations keyed by
// their generated code and queryable by email or entity.
type InvitationRepository struct {
	db *gorm.DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *gorm.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create validates and inserts an invitation. The code is generated when
// absent, and the email column is masked with the code until registration.
func (r *InvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	if !inv.Role.Valid() {
		return models.NewValidationError("role", inv)
	}
	if inv.Code == "" {
		inv.Code = uuid.New().String()
	}
	if inv.Email == "" {
		inv.Email = inv.Code
	}
	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// Get returns the invitation for the code, or nil when nothing matches
func (r *InvitationRepository) Get(ctx context.Context, code string) (*models.Invitation, error) {
	var inv models.Invitation
	err := r.db.WithContext(ctx).First(&inv, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read invitation: %w", err)
	}
	return &inv, nil
}

// ListByEmail returns invitations addressed to the email
func (r *InvitationRepository) ListByEmail(ctx context.Context, email string) ([]models.Invitation, error) {
	var invs []models.Invitation
	if err := r.db.WithContext(ctx).Where("email = ?", email).Find(&invs).Error; err != nil {
		return nil, fmt.Errorf("failed to list invitations by email: %w", err)
	}
	return invs, nil
}

// ListByEntity returns invitations issued for the entity
func (r *InvitationRepository) ListByEntity(ctx context.Context, entityID string) ([]models.Invitation, error) {
	var invs []models.Invitation
	if err := r.db.WithContext(ctx).Where("entity_id = ?", entityID).Find(&invs).Error; err != nil {
		return nil, fmt.Errorf("failed to list invitations by entity: %w", err)
	}
	return invs, nil
}

// Update applies the given mutable fields to the keyed invitation
func (r *InvitationRepository) Update(ctx context.Context, code string, updates map[string]interface{}) error {
	if code == "" {
		return models.NewValidationError("code", updates)
	}
	delete(updates, "code")
	if len(updates) == 0 {
		return models.NewValidationError("updates", updates)
	}
	if err := r.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("code = ?", code).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	return nil
}

// Delete removes the invitation row
func (r *InvitationRepository) Delete(ctx context.Context, code string) error {
	if code == "" {
		return models.NewValidationError("code", code)
	}
	if err := r.db.WithContext(ctx).Delete(&models.Invitation{}, "code = ?", code).Error; err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	return nil
}

// DeleteByEmailAndEntity removes every invitation addressed to the email at
// the entity. Used when a representative is removed.
func (r *InvitationRepository) DeleteByEmailAndEntity(ctx context.Context, email, entityID string) error {
	if email == "" || entityID == "" {
		return models.NewValidationError("email/entity_id", email+"/"+entityID)
	}
	if err := r.db.WithContext(ctx).
		Where("email = ? AND entity_id = ?", email, entityID).
		Delete(&models.Invitation{}).Error; err != nil {
		return fmt.Errorf("failed to delete invitations: %w", err)
	}
	return nil
}
