package models

// Delegate is a secondary contact record attached to a user
type Delegate struct {
	Fullname    string `gorm:"column:delegate_fullname" json:"fullname,omitempty"`
	Title       string `gorm:"column:delegate_title" json:"title,omitempty"`
	Email       string `gorm:"column:delegate_email" json:"email,omitempty"`
	PhoneNumber string `gorm:"column:delegate_phone_number" json:"phoneNumber,omitempty"`
}

// User represents a person acting on behalf of an entity.
// A person may rarely hold accounts at more than one entity, so the key is
// the (email, entity_id) pair rather than the email alone.
type User struct {
	Email    string `gorm:"primarykey;column:email" json:"email"`
	EntityID string `gorm:"primarykey;column:entity_id" json:"entityId"`
	// Role is one of SYS_ADMIN, RE_ADMIN, RE_AUTH_IND, CONSENTING_PERSON
	Role Role `gorm:"column:role;not null" json:"role"`
	// Sub is the opaque identity-directory reference for the account
	Sub         string   `gorm:"column:sub" json:"sub"`
	Active      YesNo    `gorm:"column:active;not null;default:Yes" json:"active"`
	Fullname    string   `gorm:"column:fullname" json:"fullname"`
	PhoneNumber string   `gorm:"column:phone_number" json:"phoneNumber"`
	Title       string   `gorm:"column:title" json:"title"`
	Delegate    Delegate `gorm:"embedded" json:"delegate,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (User) TableName() string {
	return "users"
}

// IsActive reports whether the user is active
func (u *User) IsActive() bool {
	return u.Active == Yes
}
