package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/opendisclosure/entity-backend/v1/models"
	"gorm.io/gorm"
)

// EntityRepository provides per-record access to entities. Required-field
// validation happens here, before any write is attempted.
type EntityRepository struct {
	db *gorm.DB
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(db *gorm.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// Create validates and inserts an entity. The entity ID is generated when
// absent.
func (r *EntityRepository) Create(ctx context.Context, entity *models.Entity) error {
	if strings.TrimSpace(entity.EntityName) == "" {
		return models.NewValidationError("entity_name", entity)
	}
	if entity.EntityID == "" {
		entity.EntityID = "ent_" + uuid.New().String()
	}
	if entity.Active == "" {
		entity.Active = models.Yes
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

// Get returns the entity for the given ID, or nil when nothing matches
func (r *EntityRepository) Get(ctx context.Context, entityID string) (*models.Entity, error) {
	var entity models.Entity
	err := r.db.WithContext(ctx).First(&entity, "entity_id = ?", entityID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read entity: %w", err)
	}
	return &entity, nil
}

// GetByName returns the entity whose name matches case-insensitively, or nil
func (r *EntityRepository) GetByName(ctx context.Context, entityName string) (*models.Entity, error) {
	var entity models.Entity
	err := r.db.WithContext(ctx).
		Where("LOWER(entity_name) = ?", strings.ToLower(entityName)).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read entity by name: %w", err)
	}
	return &entity, nil
}

// List returns all entities
func (r *EntityRepository) List(ctx context.Context) ([]models.Entity, error) {
	var entities []models.Entity
	if err := r.db.WithContext(ctx).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	return entities, nil
}

// Update applies the given mutable fields to the keyed entity. It fails when
// the key is incomplete or no mutable fields were supplied.
func (r *EntityRepository) Update(ctx context.Context, entityID string, updates map[string]interface{}) error {
	if entityID == "" {
		return models.NewValidationError("entity_id", updates)
	}
	delete(updates, "entity_id")
	if len(updates) == 0 {
		return models.NewValidationError("updates", updates)
	}
	if err := r.db.WithContext(ctx).Model(&models.Entity{}).
		Where("entity_id = ?", entityID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	return nil
}

// Delete removes the entity row
func (r *EntityRepository) Delete(ctx context.Context, entityID string) error {
	if entityID == "" {
		return models.NewValidationError("entity_id", entityID)
	}
	if err := r.db.WithContext(ctx).Delete(&models.Entity{}, "entity_id = ?", entityID).Error; err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}
