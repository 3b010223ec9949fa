package domain

import (
	"strings"
	"time"
)

// Share grants a collaborator access to one task.
type Share struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	OwnerID   string    `json:"ownerId"`
	Email     string    `json:"email"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Joined reports whether the collaborator has an account yet.
func (s Share) Joined() bool { return s.UserID != "" }

// NormalizeEmail lower-cases and trims an address for comparisons and keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
