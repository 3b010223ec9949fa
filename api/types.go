package api

import (
	"context"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
	"github.com/Peap0ds-23/collaborative-todo-1/gateway"
)

// Gateway is the set of application actions the handlers expose.
type Gateway interface {
	SignUp(ctx context.Context, email, password string) (domain.User, error)
	SignIn(ctx context.Context, email, password string) (domain.Identity, error)
	CurrentUser(ctx context.Context, id domain.Identity) (domain.User, error)
	SignOut(ctx context.Context, id domain.Identity)

	ListTasks(ctx context.Context, id domain.Identity) (domain.TaskList, error)
	AddTask(ctx context.Context, id domain.Identity, in gateway.TaskInput) (domain.Task, error)
	EditTask(ctx context.Context, id domain.Identity, taskID string, in gateway.TaskInput) (domain.Task, error)
	SetComplete(ctx context.Context, id domain.Identity, taskID string, complete bool) (domain.Task, error)
	DeleteTask(ctx context.Context, id domain.Identity, taskID string) error
	DeleteCompleted(ctx context.Context, id domain.Identity) (int, error)
	DeleteAll(ctx context.Context, id domain.Identity) (int, error)
	UpdateOrder(ctx context.Context, id domain.Identity, taskIDs []string) error
	TaskHistory(ctx context.Context, id domain.Identity, taskID string) ([]domain.AuditLogEntry, error)

	ShareTask(ctx context.Context, id domain.Identity, taskID, email string) (domain.Share, error)
	RemoveCollaborator(ctx context.Context, id domain.Identity, taskID, email string) error
	Collaborators(ctx context.Context, id domain.Identity, taskID string) ([]gateway.Collaborator, error)

	Notifications(ctx context.Context, id domain.Identity) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id domain.Identity, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, id domain.Identity) error
}

// Authenticator resolves the caller of a request from a bearer token and can
// mint tokens when running with a local signing secret.
type Authenticator interface {
	IdentityFromAuthHeader(string) (domain.Identity, error)
	IdentityFromToken(token string) (domain.Identity, error)
	Issue(id domain.Identity) (string, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, userID, key string) error
}
