package models

// Role represents the role a user holds at an entity
type Role string

const (
	RoleSysAdmin         Role = "SYS_ADMIN"
	RoleEntityAdmin      Role = "RE_ADMIN"
	RoleAuthorizedInd    Role = "RE_AUTH_IND"
	RoleConsentingPerson Role = "CONSENTING_PERSON"
)

// Valid reports whether the role is one of the known enum values
func (r Role) Valid() bool {
	switch r {
	case RoleSysAdmin, RoleEntityAdmin, RoleAuthorizedInd, RoleConsentingPerson:
		return true
	}
	return false
}

// CreatesEntity reports whether registering under this role may create a new entity
func (r Role) CreatesEntity() bool {
	return r == RoleEntityAdmin
}

// YesNo represents the active flag stored on entities and users
type YesNo string

const (
	Yes YesNo = "Yes"
	No  YesNo = "No"
)

// EntityIDWaitingRoom is the reserved pseudo-entity holding people not yet
// attached to a real organization. It is never demolished.
const EntityIDWaitingRoom = "WAITING_ROOM"

// Task names accepted by the dispatch surface
const (
	TaskDemolishEntity    = "demolish-entity"
	TaskCorrectEntityRep  = "correct-entity-rep"
	TaskAmendEntityName   = "amend-entity-name"
	TaskInviteUser        = "invite-user"
	TaskRetractInvitation = "retract-invitation"
	TaskLookupInvitation  = "lookup-invitation"
	TaskAcknowledge       = "acknowledge"
	TaskRegister          = "register"
	TaskCheckStaleVacancy = "check-stale-vacancy"
	TaskPing              = "ping"
)

// ScheduledTaskStatus represents the lifecycle of a one-shot timer row
type ScheduledTaskStatus string

const (
	ScheduledTaskPending ScheduledTaskStatus = "pending"
	ScheduledTaskFired   ScheduledTaskStatus = "fired"
	ScheduledTaskFailed  ScheduledTaskStatus = "failed"
)

// EmailStatus represents the outcome recorded in the email log
type EmailStatus string

const (
	EmailStatusSent   EmailStatus = "sent"
	EmailStatusFailed EmailStatus = "failed"
)

// DoorwaySeparator splits a doorway name into its role prefix and remainder,
// e.g. "RE_ADMIN-entity-portal" carries role RE_ADMIN.
const DoorwaySeparator = "-"

// Field length constraints
const (
	MaxNameLength        = 255
	MaxDescriptionLength = 1000
	MaxEmailLength       = 320 // RFC 3696 specification
	MaxPhoneLength       = 15  // E.164 format
)
