package model

import "time"

// Role distinguishes the two account types. Roles are fixed at creation.
type Role string

const (
	RoleParent Role = "PARENT"
	RoleChild  Role = "CHILD"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	ParentID  *int64    `json:"parent_id"`
	HasPIN    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsParent() bool { return u.Role == RoleParent }

type Session struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
