package models

// Entity represents a registered organization using the platform
type Entity struct {
	EntityID    string `gorm:"primarykey;column:entity_id" json:"entityId"`
	EntityName  string `gorm:"column:entity_name;not null" json:"entityName"`
	Description string `gorm:"column:description" json:"description"`
	Active      YesNo  `gorm:"column:active;not null;default:Yes" json:"active"`
	BaseModel
}

// TableName sets the table name for GORM
func (Entity) TableName() string {
	return "entities"
}

// IsActive reports whether the entity is active
func (e *Entity) IsActive() bool {
	return e.Active == Yes
}

// IsWaitingRoom reports whether this is the reserved pseudo-entity
func (e *Entity) IsWaitingRoom() bool {
	return e.EntityID == EntityIDWaitingRoom
}
