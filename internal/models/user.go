package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser       = "user"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// User is an account on the platform. Any user can act as buyer or seller;
// supervisors mediate disputes and admins run the platform.
type User struct {
	ID       uint   `gorm:"primarykey" json:"id"`
	FullName string `gorm:"not null" json:"full_name"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `gorm:"not null" json:"-"`
	UserTag  string `gorm:"uniqueIndex;not null" json:"user_tag"`

	Role        string     `gorm:"type:varchar(20);default:'user'" json:"role"`
	IsSuspended bool       `gorm:"default:false" json:"is_suspended"`
	SuspendedAt *time.Time `json:"suspended_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate hook to set default role
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// IsAdmin checks if user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsSupervisor checks if user may mediate disputes
func (u *User) IsSupervisor() bool {
	return u.Role == RoleSupervisor || u.Role == RoleAdmin
}
