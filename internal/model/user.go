package model

import "time"

// Permission levels.
const (
	PermissionAnonymous  = 0
	PermissionRegistered = 1
	PermissionAdmin      = 2
	PermissionModerator  = 5
)

type User struct {
	ID              string    `json:"id" db:"id"`
	Username        string    `json:"username" db:"username"`
	Email           string    `json:"email" db:"email"`
	PermissionLevel int       `json:"permission_level" db:"permission_level"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

func (u *User) IsRegistered() bool { return u.PermissionLevel >= PermissionRegistered }

// CanRemoveOthers reports whether u may delete runnables owned by others.
func (u *User) CanRemoveOthers() bool { return u.PermissionLevel >= PermissionAdmin }

func (u *User) IsModerator() bool { return u.PermissionLevel >= PermissionModerator }
