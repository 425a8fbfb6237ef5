package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opendisclosure/entity-backend/idp"
	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/opendisclosure/entity-backend/v1/repository"
	"gorm.io/gorm"
)

// MockIDP is a fake identity directory for testing
type MockIDP struct {
	CreateUserFunc        func(ctx context.Context, user *idp.User) (*idp.UserInfo, error)
	GetUserFunc           func(ctx context.Context, sub string) (*idp.UserInfo, error)
	GetUserByUsernameFunc func(ctx context.Context, username string) (*idp.UserInfo, error)
	UpdateUserFunc        func(ctx context.Context, sub string, user *idp.User) (*idp.UserInfo, error)
	DeleteUserFunc        func(ctx context.Context, sub string) error
	ListUsersFunc         func(ctx context.Context) ([]idp.UserInfo, error)
	ListDoorwaysFunc      func(ctx context.Context) ([]idp.Doorway, error)

	mu          sync.Mutex
	DeletedSubs []string
}

func (m *MockIDP) CreateUser(ctx context.Context, user *idp.User) (*idp.UserInfo, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, user)
	}
	return &idp.UserInfo{Sub: "sub_123", Email: user.Email, Fullname: user.Fullname}, nil
}

func (m *MockIDP) GetUser(ctx context.Context, sub string) (*idp.UserInfo, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, sub)
	}
	return &idp.UserInfo{Sub: sub, Email: sub + "@example.com"}, nil
}

func (m *MockIDP) GetUserByUsername(ctx context.Context, username string) (*idp.UserInfo, error) {
	if m.GetUserByUsernameFunc != nil {
		return m.GetUserByUsernameFunc(ctx, username)
	}
	return nil, fmt.Errorf("user %s not found", username)
}

func (m *MockIDP) UpdateUser(ctx context.Context, sub string, user *idp.User) (*idp.UserInfo, error) {
	if m.UpdateUserFunc != nil {
		return m.UpdateUserFunc(ctx, sub, user)
	}
	return &idp.UserInfo{Sub: sub, Email: user.Email}, nil
}

func (m *MockIDP) DeleteUser(ctx context.Context, sub string) error {
	m.mu.Lock()
	m.DeletedSubs = append(m.DeletedSubs, sub)
	m.mu.Unlock()
	if m.DeleteUserFunc != nil {
		return m.DeleteUserFunc(ctx, sub)
	}
	return nil
}

func (m *MockIDP) ListUsers(ctx context.Context) ([]idp.UserInfo, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx)
	}
	return nil, nil
}

func (m *MockIDP) ListDoorways(ctx context.Context) ([]idp.Doorway, error) {
	if m.ListDoorwaysFunc != nil {
		return m.ListDoorwaysFunc(ctx)
	}
	return nil, nil
}

// sentEmail is one captured notification
type sentEmail struct {
	To      string
	Subject string
	Body    string
}

// recordingNotifier captures every notification instead of delivering it
type recordingNotifier struct {
	mu    sync.Mutex
	Sent  []sentEmail
	Fail  bool
	Error error
}

func (n *recordingNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		if n.Error != nil {
			return n.Error
		}
		return fmt.Errorf("delivery to %s failed", to)
	}
	n.Sent = append(n.Sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.Sent {
		out = append(out, e.To)
	}
	return out
}

// armedTimer is one captured scheduler call
type armedTimer struct {
	Delay   time.Duration
	Task    string
	Payload map[string]interface{}
	Name    string
}

// fakeScheduler records armed timers without persisting them
type fakeScheduler struct {
	mu    sync.Mutex
	Armed []armedTimer
	Err   error
}

func (s *fakeScheduler) Arm(ctx context.Context, delay time.Duration, task string, payload map[string]interface{}, name, description string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Armed = append(s.Armed, armedTimer{Delay: delay, Task: task, Payload: payload, Name: name})
	return fmt.Sprintf("tmr_test_%d", len(s.Armed)), nil
}

// testConfig returns a lifecycle configuration with deterministic settings
func testConfig() *LifecycleConfig {
	return &LifecycleConfig{
		ExpireAfter: map[models.Role]time.Duration{
			models.RoleSysAdmin:         7 * 24 * time.Hour,
			models.RoleEntityAdmin:      7 * 24 * time.Hour,
			models.RoleAuthorizedInd:    14 * 24 * time.Hour,
			models.RoleConsentingPerson: 30 * 24 * time.Hour,
		},
		StaleVacancyWait: map[models.Role]time.Duration{
			models.RoleEntityAdmin:   14 * 24 * time.Hour,
			models.RoleAuthorizedInd: 14 * 24 * time.Hour,
		},
		StaleVacancyGrace: time.Hour,
		PortalBaseURL:     "http://localhost:3000",
		HostedSignupURL:   "https://idp.example.com/signup",
		LinkSigningSecret: "test-secret",
	}
}

// lifecycleStack is the full set of wired services tests exercise
type lifecycleStack struct {
	db           *gorm.DB
	entities     *repository.EntityRepository
	users        *repository.UserRepository
	invitations  *repository.InvitationRepository
	idp          *MockIDP
	notifier     *recordingNotifier
	scheduler    *fakeScheduler
	cfg          *LifecycleConfig
	admission    *AdmissionService
	registration *RegistrationService
	demolition   *DemolitionService
	personnel    *PersonnelService
	entity       *EntityService
}

func newLifecycleStack(t *testing.T) *lifecycleStack {
	db := SetupSQLiteTestDB(t)
	entities := repository.NewEntityRepository(db)
	users := repository.NewUserRepository(db)
	invitations := repository.NewInvitationRepository(db)

	directory := &MockIDP{}
	notifier := &recordingNotifier{}
	scheduler := &fakeScheduler{}
	cfg := testConfig()

	admission := NewAdmissionService(entities, users, invitations, directory, notifier, cfg)
	demolition := NewDemolitionService(db, entities, users, invitations, directory, notifier)

	return &lifecycleStack{
		db:           db,
		entities:     entities,
		users:        users,
		invitations:  invitations,
		idp:          directory,
		notifier:     notifier,
		scheduler:    scheduler,
		cfg:          cfg,
		admission:    admission,
		registration: NewRegistrationService(entities, users, invitations, directory),
		demolition:   demolition,
		personnel:    NewPersonnelService(entities, users, invitations, directory, notifier, scheduler, admission, demolition, cfg),
		entity:       NewEntityService(entities),
	}
}

// seedEntity inserts an active entity
func (s *lifecycleStack) seedEntity(t *testing.T, entityID, name string) {
	entity := models.Entity{EntityID: entityID, EntityName: name, Active: models.Yes}
	if err := s.db.Create(&entity).Error; err != nil {
		t.Fatalf("Failed to seed entity %s: %v", entityID, err)
	}
}

// seedUser inserts a user membership row
func (s *lifecycleStack) seedUser(t *testing.T, email, entityID string, role models.Role, active models.YesNo) *models.User {
	user := models.User{
		Email:    email,
		EntityID: entityID,
		Role:     role,
		Sub:      "sub_" + email,
		Active:   active,
		Fullname: email,
	}
	if err := s.db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to seed user %s: %v", email, err)
	}
	return &user
}

// seedInvitation inserts an invitation sent at the given time
func (s *lifecycleStack) seedInvitation(t *testing.T, code, entityID string, role models.Role, sent time.Time) *models.Invitation {
	inv := models.Invitation{
		Code:          code,
		Email:         code,
		Role:          role,
		EntityID:      entityID,
		SentTimestamp: &sent,
	}
	if err := s.db.Create(&inv).Error; err != nil {
		t.Fatalf("Failed to seed invitation %s: %v", code, err)
	}
	return &inv
}
