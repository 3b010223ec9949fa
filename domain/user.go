package domain

import "time"

// User is an account able to sign in.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
}

// Authenticated reports whether the identity belongs to a signed-in user.
func (i Identity) Authenticated() bool { return i.UserID != "" }
