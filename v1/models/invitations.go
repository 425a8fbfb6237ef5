package models

import (
	"strings"
	"time"
)

// Invitation represents an offer to join an entity under a role.
// Before registration the email column holds the invitation code rather than
// the real address, so the stored record discloses nothing about the invitee.
type Invitation struct {
	Code     string `gorm:"primarykey;column:code" json:"code"`
	Email    string `gorm:"column:email;index" json:"email"`
	Role     Role   `gorm:"column:role;not null" json:"role"`
	EntityID string `gorm:"column:entity_id;index" json:"entityId"`
	// SentTimestamp is set when the invitation is issued
	SentTimestamp *time.Time `gorm:"column:sent_timestamp" json:"sentTimestamp,omitempty"`
	// AcknowledgedTimestamp is set when the invitee acknowledges the privacy policy
	AcknowledgedTimestamp *time.Time `gorm:"column:acknowledged_timestamp" json:"acknowledgedTimestamp,omitempty"`
	// RegisteredTimestamp is set when the invitee completes registration
	RegisteredTimestamp *time.Time `gorm:"column:registered_timestamp" json:"registeredTimestamp,omitempty"`
	// RetractedTimestamp permanently disqualifies the invitation once set
	RetractedTimestamp *time.Time `gorm:"column:retracted_timestamp" json:"retractedTimestamp,omitempty"`
	// SignupParameter is a stashed hint such as "amend"
	SignupParameter string `gorm:"column:signup_parameter" json:"signupParameter,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (Invitation) TableName() string {
	return "invitations"
}

// tsOrZero treats a missing timestamp as the oldest possible value
func tsOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Acknowledged reports whether the privacy policy was acknowledged
func (i *Invitation) Acknowledged() bool {
	return i.AcknowledgedTimestamp != nil
}

// Registered reports whether registration completed
func (i *Invitation) Registered() bool {
	return i.RegisteredTimestamp != nil
}

// Retracted reports whether the invitation was retracted after it was last
// sent. A retraction older than the send belongs to a previous issue of the
// same code and does not disqualify it.
func (i *Invitation) Retracted() bool {
	if i.RetractedTimestamp == nil {
		return false
	}
	return tsOrZero(i.RetractedTimestamp).After(tsOrZero(i.SentTimestamp)) ||
		tsOrZero(i.RetractedTimestamp).Equal(tsOrZero(i.SentTimestamp))
}

// ExpiredAt reports whether the invitation has gone unregistered for at
// least the given window, measured from the send time at the instant now.
func (i *Invitation) ExpiredAt(now time.Time, window time.Duration) bool {
	if i.Registered() {
		return false
	}
	return now.Sub(tsOrZero(i.SentTimestamp)) >= window
}

// EmailIsMasked reports whether the email column still holds the invitation
// code instead of a deliverable address.
func EmailIsMasked(email string) bool {
	return !strings.Contains(email, "@")
}
