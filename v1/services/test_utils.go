package services

import (
	"testing"

	"github.com/opendisclosure/entity-backend/v1/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupSQLiteTestDB creates an in-memory SQLite database for testing
func SetupSQLiteTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to SQLite test database: %v", err)
	}

	// Auto-migrate all models
	err = db.AutoMigrate(
		&models.Entity{},
		&models.User{},
		&models.Invitation{},
		&models.ScheduledTask{},
		&models.EmailLog{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	// Clean up test data before each test
	CleanupTestData(t, db)

	return db
}

// CleanupTestData removes all test data from the database and reseeds the
// waiting room. Exported for use in handler tests.
func CleanupTestData(t *testing.T, db *gorm.DB) {
	// Delete in reverse order of dependencies
	if err := db.Exec("DELETE FROM scheduled_tasks").Error; err != nil {
		t.Logf("Warning: failed to cleanup scheduled_tasks: %v", err)
	}
	if err := db.Exec("DELETE FROM email_logs").Error; err != nil {
		t.Logf("Warning: failed to cleanup email_logs: %v", err)
	}
	if err := db.Exec("DELETE FROM invitations").Error; err != nil {
		t.Logf("Warning: failed to cleanup invitations: %v", err)
	}
	if err := db.Exec("DELETE FROM users").Error; err != nil {
		t.Logf("Warning: failed to cleanup users: %v", err)
	}
	if err := db.Exec("DELETE FROM entities").Error; err != nil {
		t.Logf("Warning: failed to cleanup entities: %v", err)
	}

	waitingRoom := models.Entity{
		EntityID:   models.EntityIDWaitingRoom,
		EntityName: "Waiting Room",
		Active:     models.Yes,
	}
	if err := db.Create(&waitingRoom).Error; err != nil {
		t.Fatalf("Failed to seed waiting room entity: %v", err)
	}
}
