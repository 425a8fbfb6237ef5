package models

// TaskRequest is the parameter bag accepted by the dispatch surface
type TaskRequest struct {
	Task       string                 `json:"task"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TaskResponse is the uniform dispatch result
type TaskResponse struct {
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Payload    interface{} `json:"payload,omitempty"`
}

// InviteUserRequest describes a candidate invitation
type InviteUserRequest struct {
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	EntityID string `json:"entityId,omitempty"`
	// InviterRole is the role of the person issuing the invitation
	InviterRole Role `json:"inviterRole"`
	// InviterSub identifies the inviter in the identity directory; used to
	// resolve the inviter's own entity when none was named
	InviterSub string `json:"inviterSub,omitempty"`
	// SignupParameter is stashed on the invitation, e.g. "amend"
	SignupParameter string `json:"signupParameter,omitempty"`
}

// InvitationIssued is returned on a successful invitation
type InvitationIssued struct {
	Code string `json:"code"`
	Link string `json:"link"`
}

// CorrectPersonnelRequest replaces or removes an entity's representative
type CorrectPersonnelRequest struct {
	EntityID         string `json:"entityId"`
	ReplacerEmail    string `json:"replacerEmail"`
	ReplaceableEmail string `json:"replaceableEmail"`
	ReplacementEmail string `json:"replacementEmail,omitempty"`
}

// RegisterRequest completes an invitation
type RegisterRequest struct {
	Code        string `json:"code"`
	Email       string `json:"email"`
	Fullname    string `json:"fullname"`
	Title       string `json:"title,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	// EntityName is the proposed name when the role creates a new entity
	EntityName string `json:"entityName,omitempty"`
}

// AmendEntityNameRequest renames an entity
type AmendEntityNameRequest struct {
	EntityID   string `json:"entityId"`
	EntityName string `json:"entityName"`
}

// PlannedDelete is one item of the demolition transaction input
type PlannedDelete struct {
	Table string `json:"table"`
	Key   string `json:"key"`
}

// DemolitionRecord is the audit record returned by a demolition: the
// transaction input that was (or on a dry run, would have been) submitted
// plus every user the transaction removed.
type DemolitionRecord struct {
	EntityID     string          `json:"entityId"`
	DryRun       bool            `json:"dryRun"`
	Planned      []PlannedDelete `json:"planned"`
	DeletedUsers []User          `json:"deletedUsers"`
}
