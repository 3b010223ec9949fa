package domain

import "time"

// AuditAction names a task lifecycle event.
type AuditAction string

const (
	AuditCreated             AuditAction = "created"
	AuditUpdated             AuditAction = "updated"
	AuditCompleted           AuditAction = "completed"
	AuditUncompleted         AuditAction = "uncompleted"
	AuditCollaboratorAdded   AuditAction = "collaborator_added"
	AuditCollaboratorRemoved AuditAction = "collaborator_removed"
)

// AuditLogEntry is an immutable record of one action on a task.
type AuditLogEntry struct {
	ID         string      `json:"id"`
	TaskID     string      `json:"taskId"`
	Action     AuditAction `json:"actionType"`
	Message    string      `json:"message"`
	ActorID    string      `json:"performedByUserId"`
	ActorEmail string      `json:"performedByEmail,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// AuditMessage renders the human-readable line stored with an entry.
func AuditMessage(action AuditAction, subject string) string {
	switch action {
	case AuditCreated:
		return `Task created: "` + subject + `"`
	case AuditUpdated:
		return `Task updated: "` + subject + `"`
	case AuditCompleted:
		return `Marked task as completed: "` + subject + `"`
	case AuditUncompleted:
		return `Marked task as incomplete: "` + subject + `"`
	case AuditCollaboratorAdded:
		return "Added collaborator: " + subject
	case AuditCollaboratorRemoved:
		return "Removed collaborator: " + subject
	}
	return string(action) + ": " + subject
}
