package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opendisclosure/entity-backend/v1/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedWarnerBros sets up an entity with an admin and two authorized
// individuals, one of whom is about to be replaced.
func seedWarnerBros(t *testing.T, stack *lifecycleStack) {
	stack.seedEntity(t, "ent_warnerbros", "Warner Bros")
	stack.seedUser(t, "bugs@warnerbros.com", "ent_warnerbros", models.RoleEntityAdmin, models.Yes)
	stack.seedUser(t, "daffy@warnerbros.com", "ent_warnerbros", models.RoleAuthorizedInd, models.Yes)
	stack.seedUser(t, "elmer@warnerbros.com", "ent_warnerbros", models.RoleAuthorizedInd, models.Yes)
}

func TestCorrectPersonnel_SelfSuccessionRejected(t *testing.T) {
	stack := newLifecycleStack(t)
	seedWarnerBros(t, stack)

	_, err := stack.personnel.CorrectPersonnel(context.Background(), &models.CorrectPersonnelRequest{
		EntityID:         "ent_warnerbros",
		ReplacerEmail:    "bugs@warnerbros.com",
		ReplaceableEmail: "daffy@warnerbros.com",
		ReplacementEmail: "daffy@warnerbros.com",
	})

	var re *models.RejectionError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Reason, "cannot equal")

	// Nothing was mutated
	daffy, err := stack.users.Get(context.Background(), "daffy@warnerbros.com", "ent_warnerbros")
	require.NoError(t, err)
	require.NotNil(t, daffy)
	assert.True(t, daffy.IsActive())
	assert.Empty(t, stack.idp.DeletedSubs)
	assert.Empty(t, stack.scheduler.Armed)
}

func TestCorrectPersonnel_UnknownOutgoingRejected(t *testing.T) {
	stack := newLifecycleStack(t)
	seedWarnerBros(t, stack)

	_, err := stack.personnel.CorrectPersonnel(context.Background(), &models.CorrectPersonnelRequest{
		EntityID:         "ent_warnerbros",
		ReplacerEmail:    "bugs@warnerbros.com",
		ReplaceableEmail: "nobody@warnerbros.com",
	})

	var re *models.RejectionError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Reason, "no user with email")
}

func TestCorrectPersonnel_ReplacerMustBeActiveMember(t *testing.T) {
	stack := newLifecycleStack(t)
	seedWarnerBros(t, stack)
	stack.seedUser(t, "marvin@mars.com", "ent_warnerbros", models.RoleAuthorizedInd, models.No)

	_, err := stack.personnel.CorrectPersonnel(context.Background(), &models.CorrectPersonnelRequest{
		EntityID:         "ent_warnerbros",
		ReplacerEmail:    "marvin@mars.com",
		ReplaceableEmail: "daffy@warnerbros.com",
	})

	var re *models.RejectionError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Reason, "cannot act as replacer")
}

func TestCorrectPersonnel_EndToEnd(t *testing.T) {
	stack := newLifecycleStack(t)
	seedWarnerBros(t, stack)
	stack.seedInvitation(t, "daffy-open-code", "ent_warnerbros", models.RoleAuthorizedInd, time.Now())
	require.NoError(t, stack.db.Model(&models.Invitation{}).
		Where("code = ?", "daffy-open-code").
		Update("email", "daffy@warnerbros.com").Error)

	result, err := stack.personnel.CorrectPersonnel(context.Background(), &models.CorrectPersonnelRequest{
		EntityID:         "ent_warnerbros",
		ReplacerEmail:    "bugs@warnerbros.com",
		ReplaceableEmail: "daffy@warnerbros.com",
		ReplacementEmail: "porky@warnerbros.com",
	})
	require.NoError(t, err)

	// Step 1: daffy is deactivated and his open invitations are gone
	daffy, err := stack.users.Get(context.Background(), "daffy@warnerbros.com", "ent_warnerbros")
	require.NoError(t, err)
	require.NotNil(t, daffy)
	assert.False(t, daffy.IsActive())
	gone, err := stack.invitations.Get(context.Background(), "daffy-open-code")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Step 2: daffy's directory account was deleted
	assert.Equal(t, []string{"sub_daffy@warnerbros.com"}, stack.idp.DeletedSubs)

	// Steps 3 and 4: daffy and elmer were notified, bugs (the actor) was not
	recipients := stack.notifier.recipients()
	assert.Contains(t, recipients, "daffy@warnerbros.com")
	assert.Contains(t, recipients, "elmer@warnerbros.com")
	assert.NotContains(t, recipients, "bugs@warnerbros.com")

	// Step 5: porky was invited into the vacated role
	require.NotNil(t, result.Invitation)
	inv, err := stack.invitations.Get(context.Background(), result.Invitation.Code)
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, models.RoleAuthorizedInd, inv.Role)
	assert.Equal(t, "ent_warnerbros", inv.EntityID)
	assert.Contains(t, recipients, "porky@warnerbros.com")

	// Step 6: the stale-vacancy timer was armed for the vacated seat
	require.Len(t, stack.scheduler.Armed, 1)
	timer := stack.scheduler.Armed[0]
	assert.Equal(t, models.TaskCheckStaleVacancy, timer.Task)
	assert.Equal(t, "ent_warnerbros", timer.Payload["entityId"])
	assert.Equal(t, string(models.RoleAuthorizedInd), timer.Payload["role"])
	assert.Equal(t, stack.cfg.StaleVacancyDelayFor(models.RoleAuthorizedInd), timer.Delay)
	assert.Equal(t, timer.Name, "stale-vacancy-ent_warnerbros-RE_AUTH_IND")
	assert.Equal(t, result.TimerID, "tmr_test_1")
}

func TestCorrectPersonnel_RemovalOnlyStillArmsTimer(t *testing.T) {
	stack := newLifecycleStack(t)
	seedWarnerBros(t, stack)

	result, err := stack.personnel.CorrectPersonnel(context.Background(), &models.CorrectPersonnelRequest{
		EntityID:         "ent_warnerbros",
		ReplacerEmail:    "bugs@warnerbros.com",
		ReplaceableEmail: "daffy@warnerbros.com",
	})
	require.NoError(t, err)
	assert.Nil(t, result.Invitation)
	require.Len(t, stack.scheduler.Armed, 1)
	assert.Equal(t, models.TaskCheckStaleVacancy, stack.scheduler.Armed[0].Task)
}

func TestCorrectPersonnel_DirectoryFailureAbortsWithoutRollback(t *testing.T) {
	stack := newLifecycleStack(t)
	seedWarnerBros(t, stack)
	stack.idp.DeleteUserFunc = func(ctx context.Context, sub string) error {
		return fmt.Errorf("directory unavailable")
	}

	_, err := stack.personnel.CorrectPersonnel(context.Background(), &models.CorrectPersonnelRequest{
		EntityID:         "ent_warnerbros",
		ReplacerEmail:    "bugs@warnerbros.com",
		ReplaceableEmail: "daffy@warnerbros.com",
		ReplacementEmail: "porky@warnerbros.com",
	})
	require.Error(t, err)

	// The deactivation from the first step stands; later steps never ran
	daffy, getErr := stack.users.Get(context.Background(), "daffy@warnerbros.com", "ent_warnerbros")
	require.NoError(t, getErr)
	require.NotNil(t, daffy)
	assert.False(t, daffy.IsActive())
	assert.Empty(t, stack.scheduler.Armed)

	invs, listErr := stack.invitations.ListByEntity(context.Background(), "ent_warnerbros")
	require.NoError(t, listErr)
	assert.Empty(t, invs)
}

func TestCheckStaleVacancy_FilledSeatIsNoOp(t *testing.T) {
	stack := newLifecycleStack(t)
	seedWarnerBros(t, stack)

	record, err := stack.personnel.CheckStaleVacancy(context.Background(), "ent_warnerbros", models.RoleAuthorizedInd)
	require.NoError(t, err)
	assert.Nil(t, record)

	entity, err := stack.entities.Get(context.Background(), "ent_warnerbros")
	require.NoError(t, err)
	assert.NotNil(t, entity)
}

func TestCheckStaleVacancy_StaleSeatDemolishesEntity(t *testing.T) {
	stack := newLifecycleStack(t)
	stack.seedEntity(t, "ent_warnerbros", "Warner Bros")
	stack.seedUser(t, "bugs@warnerbros.com", "ent_warnerbros", models.RoleEntityAdmin, models.Yes)
	stack.seedUser(t, "daffy@warnerbros.com", "ent_warnerbros", models.RoleAuthorizedInd, models.No)

	record, err := stack.personnel.CheckStaleVacancy(context.Background(), "ent_warnerbros", models.RoleAuthorizedInd)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Len(t, record.DeletedUsers, 2)

	entity, err := stack.entities.Get(context.Background(), "ent_warnerbros")
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func TestCheckStaleVacancy_MissingEntityIsNoOp(t *testing.T) {
	stack := newLifecycleStack(t)

	record, err := stack.personnel.CheckStaleVacancy(context.Background(), "ent_gone", models.RoleAuthorizedInd)
	require.NoError(t, err)
	assert.Nil(t, record)
}
