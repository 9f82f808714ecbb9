package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the authorization role of a user
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
	RoleAdmin Role = "ADMIN"
)

// ParseRole normalizes a role name, accepting any letter case
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	switch role {
	case RoleUser, RoleAgent, RoleAdmin:
		return role, nil
	}
	return "", fmt.Errorf("unknown role %q", value)
}

// User represents an account in the system (sender, agent or admin)
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Auth0ID   *string   `gorm:"uniqueIndex" json:"auth0Id,omitempty"` // nil for provisioned accounts that never logged in
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  *string   `json:"-"` // bcrypt hash
	Role      Role      `gorm:"type:varchar(10);not null;default:'USER';check:chk_users_role,role IN ('USER','AGENT','ADMIN')" json:"role"`
	Image     *string   `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// IsAgent reports whether the user can be assigned deliveries
func (u *User) IsAgent() bool {
	return u.Role == RoleAgent
}

// IsAdmin reports whether the user has administrative rights
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
