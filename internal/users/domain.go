package users

import (
	"errors"
	"time"
)

// ErrDuplicateEmail indicates an email collision on create.
var ErrDuplicateEmail = errors.New("users: email already registered")

// User represents a console account for management views.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
