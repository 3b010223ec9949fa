package gateway

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

// Collaborator is one entry in a task's share list.
type Collaborator struct {
	Email   string    `json:"email"`
	Joined  bool      `json:"joined"`
	AddedAt time.Time `json:"addedAt"`
}

// ShareTask grants the collaborator at email access to one of the caller's
// tasks. If the address already belongs to an account, the share is linked to
// it and the collaborator is notified.
func (s *Service) ShareTask(ctx context.Context, id domain.Identity, taskID, email string) (domain.Share, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Share{}, err
	}
	email, err := domain.ValidateEmail("email", email)
	if err != nil {
		return domain.Share{}, err
	}
	if email == domain.NormalizeEmail(id.Email) {
		return domain.Share{}, domain.ErrShareWithSelf
	}
	t, err := s.ownedTask(ctx, id, taskID)
	if err != nil {
		return domain.Share{}, err
	}

	sh := domain.Share{
		ID:        s.newID(),
		TaskID:    t.ID,
		OwnerID:   id.UserID,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}
	if u, err := s.store.UserByEmail(ctx, email); err == nil {
		if u.ID == id.UserID {
			return domain.Share{}, domain.ErrShareWithSelf
		}
		sh.UserID = u.ID
	} else if !isNotFound(err) {
		return domain.Share{}, err
	}
	if err := s.store.AddShare(ctx, sh); err != nil {
		return domain.Share{}, err
	}
	s.audit(ctx, id, t.ID, domain.AuditCollaboratorAdded, email)

	recipients := []string{id.UserID}
	if sh.Joined() {
		s.notify(ctx, domain.Notification{
			UserID:  sh.UserID,
			Type:    domain.NotificationTaskShared,
			Title:   "Task Shared",
			Message: id.Email + ` shared "` + t.Title + `" with you`,
			TaskID:  t.ID,
		})
		recipients = append(recipients, sh.UserID)
	}
	s.notifyChange(ctx, realtime.TableShares, realtime.EventInsert, sh.ID, sh, recipients)
	return sh, nil
}

// RemoveCollaborator revokes a share on one of the caller's tasks. A
// collaborator with an account is notified before access is removed.
func (s *Service) RemoveCollaborator(ctx context.Context, id domain.Identity, taskID, email string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	t, err := s.ownedTask(ctx, id, taskID)
	if err != nil {
		return err
	}
	email = domain.NormalizeEmail(email)
	sh, err := s.store.GetShare(ctx, taskID, email)
	if err != nil {
		return err
	}
	if sh.Joined() {
		title := t.Title
		if title == "" {
			title = "a task"
		}
		s.notify(ctx, domain.Notification{
			UserID:  sh.UserID,
			Type:    domain.NotificationCollaboratorRemoved,
			Title:   "Access Removed",
			Message: `You have been removed from "` + title + `"`,
			TaskID:  t.ID,
		})
	}
	if err := s.store.DeleteShare(ctx, id.UserID, taskID, email); err != nil {
		return err
	}
	s.audit(ctx, id, t.ID, domain.AuditCollaboratorRemoved, email)

	recipients := []string{id.UserID}
	if sh.Joined() {
		recipients = append(recipients, sh.UserID)
	}
	s.notifyChange(ctx, realtime.TableShares, realtime.EventDelete, sh.ID, sh, recipients)
	return nil
}

// Collaborators lists who a task is shared with. Owner and collaborators may
// both read it.
func (s *Service) Collaborators(ctx context.Context, id domain.Identity, taskID string) ([]Collaborator, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	if _, err := s.visibleTask(ctx, id, taskID); err != nil {
		return nil, err
	}
	shares, err := s.store.Shares(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]Collaborator, len(shares))
	for i, sh := range shares {
		out[i] = Collaborator{Email: sh.Email, Joined: sh.Joined(), AddedAt: sh.CreatedAt}
	}
	return out, nil
}

// notify stores a notification and pushes it to the recipient's inbox.
// Notification failures are logged and never fail the action.
func (s *Service) notify(ctx context.Context, n domain.Notification) {
	n.ID = s.newID()
	n.CreatedAt = s.now().UTC()
	if err := s.store.InsertNotification(ctx, n); err != nil {
		s.logger.WithFields(log.Fields{"user": n.UserID, "type": n.Type}).WithError(err).Error("notification insert failed")
		return
	}
	s.notifyInbox(ctx, n, realtime.EventInsert)
}
