package services

import (
	"context"
	"log/slog"

	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/opendisclosure/entity-backend/v1/repository"
)

// EntityService handles entity-level operations outside the demolition path
type EntityService struct {
	entities *repository.EntityRepository
}

// NewEntityService creates a new entity service
func NewEntityService(entities *repository.EntityRepository) *EntityService {
	return &EntityService{entities: entities}
}

// GetEntity retrieves an entity by ID
func (s *EntityService) GetEntity(ctx context.Context, entityID string) (*models.Entity, error) {
	entity, err := s.entities.Get(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, models.ErrEntityNotFound
	}
	return entity, nil
}

// AmendEntityName renames an entity after verifying the new name is not
// already held by another entity, case-insensitively.
func (s *EntityService) AmendEntityName(ctx context.Context, req *models.AmendEntityNameRequest) (*models.Entity, error) {
	if req.EntityID == "" {
		return nil, models.NewValidationError("entity_id", req)
	}
	if req.EntityName == "" {
		return nil, models.NewValidationError("entity_name", req)
	}

	entity, err := s.entities.Get(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, models.ErrEntityNotFound
	}

	holder, err := s.entities.GetByName(ctx, req.EntityName)
	if err != nil {
		return nil, err
	}
	if holder != nil && holder.EntityID != entity.EntityID {
		return nil, models.Reject("entity name %q is already in use", req.EntityName)
	}

	if err := s.entities.Update(ctx, entity.EntityID, map[string]interface{}{
		"entity_name": req.EntityName,
	}); err != nil {
		return nil, err
	}
	entity.EntityName = req.EntityName

	slog.Info("Entity renamed", "entityId", entity.EntityID, "entityName", entity.EntityName)
	return entity, nil
}
