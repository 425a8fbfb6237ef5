package idp

import (
	"context"
	"strings"
)

// ProviderType identifies a supported identity-directory backend
type ProviderType string

const (
	ProviderAsgardeo ProviderType = "asgardeo"
)

// IdentityProviderAPI is the contract every identity directory fulfils
type IdentityProviderAPI interface {
	UserManager
	DoorwayManager
}

// UserManager manages one account per person. Accounts are created with a
// temporary password delivered out-of-band by the directory itself.
type UserManager interface {
	CreateUser(ctx context.Context, user *User) (*UserInfo, error)
	GetUser(ctx context.Context, sub string) (*UserInfo, error)
	GetUserByUsername(ctx context.Context, username string) (*UserInfo, error)
	UpdateUser(ctx context.Context, sub string, user *User) (*UserInfo, error)
	DeleteUser(ctx context.Context, sub string) error
	ListUsers(ctx context.Context) ([]UserInfo, error)
}

// DoorwayManager lists the role-specific applications ("doorways") people
// sign in through.
type DoorwayManager interface {
	ListDoorways(ctx context.Context) ([]Doorway, error)
}

// User carries the mutable attributes of a directory account
type User struct {
	Email       string
	Fullname    string
	PhoneNumber string
	Role        string
}

// UserInfo is a directory account. Sub is the opaque reference every other
// component stores.
type UserInfo struct {
	Sub         string
	Username    string
	Email       string
	Fullname    string
	PhoneNumber string
	Role        string
}

// Doorway is a role-specific application. By convention its name is prefixed
// with the role it represents, e.g. "RE_ADMIN-entity-portal".
type Doorway struct {
	ID   string
	Name string
}

// Role recovers the role prefix from the doorway name
func (d Doorway) Role() string {
	return strings.SplitN(d.Name, "-", 2)[0]
}
