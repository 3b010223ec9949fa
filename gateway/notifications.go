package gateway

import (
	"context"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

// Notifications returns the caller's most recent notifications, newest first.
func (s *Service) Notifications(ctx context.Context, id domain.Identity) ([]domain.Notification, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	return s.store.Notifications(ctx, id.UserID, NotificationLimit)
}

// MarkNotificationRead flags one of the caller's notifications as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id domain.Identity, notificationID string) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	if err := s.store.MarkNotificationRead(ctx, id.UserID, notificationID); err != nil {
		return err
	}
	s.notifyInbox(ctx, domain.Notification{ID: notificationID, UserID: id.UserID, Read: true}, realtime.EventUpdate)
	return nil
}

// MarkAllNotificationsRead flags every notification of the caller as read.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, id domain.Identity) error {
	if err := requireIdentity(id); err != nil {
		return err
	}
	if err := s.store.MarkAllNotificationsRead(ctx, id.UserID); err != nil {
		return err
	}
	s.notifyInbox(ctx, domain.Notification{UserID: id.UserID, Read: true}, realtime.EventUpdate)
	return nil
}

func (s *Service) notifyInbox(ctx context.Context, n domain.Notification, ev realtime.EventType) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	c := realtime.Change{Table: realtime.TableNotifications, Type: ev, UserID: n.UserID, RecordID: n.ID, Record: data, At: s.now().UTC()}
	if err := s.pub.Publish(ctx, c); err != nil {
		s.logger.WithFields(log.Fields{"table": c.Table, "user": n.UserID}).WithError(err).Warn("publish change failed")
	}
}
