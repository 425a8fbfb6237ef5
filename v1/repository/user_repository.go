package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opendisclosure/entity-backend/v1/models"
	"gorm.io/gorm"
)

// UserRepository provides per-record access to users keyed by the
// (email, entity_id) pair.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create validates and inserts a user. Fullname is required for every role
// except SYS_ADMIN, whose accounts are provisioned before a name is known.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	switch {
	case strings.TrimSpace(user.Email) == "":
		return models.NewValidationError("email", user)
	case user.EntityID == "":
		return models.NewValidationError("entity_id", user)
	case !user.Role.Valid():
		return models.NewValidationError("role", user)
	case user.Sub == "":
		return models.NewValidationError("sub", user)
	case user.Role != models.RoleSysAdmin && strings.TrimSpace(user.Fullname) == "":
		return models.NewValidationError("fullname", user)
	}
	if user.Active == "" {
		user.Active = models.Yes
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Get returns the user for the full (email, entity_id) key, or nil
func (r *UserRepository) Get(ctx context.Context, email, entityID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		First(&user, "email = ? AND entity_id = ?", email, entityID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	return &user, nil
}

// ListByEmail returns every entity membership held by the email
func (r *UserRepository) ListByEmail(ctx context.Context, email string) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users by email: %w", err)
	}
	return users, nil
}

// ListByEntity returns every user belonging to the entity
func (r *UserRepository) ListByEntity(ctx context.Context, entityID string) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Where("entity_id = ?", entityID).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users by entity: %w", err)
	}
	return users, nil
}

// Update applies the given mutable fields to the keyed user. It fails when
// the key is incomplete or no mutable fields were supplied.
func (r *UserRepository) Update(ctx context.Context, email, entityID string, updates map[string]interface{}) error {
	if email == "" || entityID == "" {
		return models.NewValidationError("email/entity_id", updates)
	}
	delete(updates, "email")
	delete(updates, "entity_id")
	if len(updates) == 0 {
		return models.NewValidationError("updates", updates)
	}
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND entity_id = ?", email, entityID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// Delete removes user rows. An empty entityID is a partial key and removes
// every entity membership held by the email.
func (r *UserRepository) Delete(ctx context.Context, email, entityID string) error {
	if email == "" {
		return models.NewValidationError("email", email)
	}
	tx := r.db.WithContext(ctx)
	if entityID == "" {
		tx = tx.Where("email = ?", email)
	} else {
		tx = tx.Where("email = ? AND entity_id = ?", email, entityID)
	}
	if err := tx.Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
