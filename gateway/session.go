package gateway

import (
	"context"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

// Session binds the service to one caller so an in-process view can drive it
// the same way a remote client drives the HTTP API.
type Session struct {
	svc *Service
	id  domain.Identity
}

// Session returns a caller-bound handle.
func (s *Service) Session(id domain.Identity) *Session {
	return &Session{svc: s, id: id}
}

// Identity returns the bound caller.
func (s *Session) Identity() domain.Identity { return s.id }

func (s *Session) LoadTasks(ctx context.Context) (domain.TaskList, error) {
	return s.svc.ListTasks(ctx, s.id)
}

func (s *Session) SetComplete(ctx context.Context, taskID string, complete bool) error {
	_, err := s.svc.SetComplete(ctx, s.id, taskID, complete)
	return err
}

func (s *Session) SaveOrder(ctx context.Context, taskIDs []string) error {
	return s.svc.UpdateOrder(ctx, s.id, taskIDs)
}

func (s *Session) Notifications(ctx context.Context) ([]domain.Notification, error) {
	return s.svc.Notifications(ctx, s.id)
}
