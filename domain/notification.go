package domain

import "time"

const (
	NotificationTaskShared          = "task_shared"
	NotificationCollaboratorRemoved = "collaborator_removed"
)

// Notification is addressed to a single user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TaskID    string    `json:"taskId,omitempty"`
	Read      bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}
