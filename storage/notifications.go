package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

type notificationEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	ID           string `json:"Id"`
	Type         string `json:"Type"`
	Title        string `json:"Title"`
	Message      string `json:"Message"`
	TaskID       string `json:"TaskId"`
	IsRead       bool   `json:"IsRead"`
	CreatedAt    string `json:"CreatedAt"`
}

type notificationReadUpdate struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	IsRead       bool   `json:"IsRead"`
}

func decodeNotificationEntity(data []byte) (notificationEntity, error) {
	var ent notificationEntity
	err := json.Unmarshal(data, &ent)
	return ent, err
}

func (e notificationEntity) toDomain() domain.Notification {
	return domain.Notification{
		ID:        e.ID,
		UserID:    e.PartitionKey,
		Type:      e.Type,
		Title:     e.Title,
		Message:   e.Message,
		TaskID:    e.TaskID,
		Read:      e.IsRead,
		CreatedAt: parseTime(e.CreatedAt),
	}
}

// InsertNotification stores a notification and hands it to the delivery
// queue when one is configured. Queue failures do not undo the row.
func (s *Storage) InsertNotification(ctx context.Context, n domain.Notification) error {
	ent := notificationEntity{
		PartitionKey: n.UserID,
		RowKey:       newestFirstKey(nextTimestamp(), n.ID),
		ID:           n.ID,
		Type:         n.Type,
		Title:        n.Title,
		Message:      n.Message,
		TaskID:       n.TaskID,
		IsRead:       n.Read,
		CreatedAt:    formatTime(n.CreatedAt),
	}
	if err := addEntity(ctx, s.notifications, ent); err != nil {
		return err
	}
	if s.notifyQueue == nil {
		return nil
	}
	msg, err := json.Marshal(n)
	if err != nil {
		return nil
	}
	if _, err := s.notifyQueue.EnqueueMessage(ctx, string(msg), nil); err != nil {
		s.logger.WithError(err).WithField("notification", n.ID).Warn("notification delivery enqueue failed")
	}
	return nil
}

// Notifications returns up to limit notifications for the user, newest first.
func (s *Storage) Notifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	ents, err := listEntities(ctx, s.notifications, eq("PartitionKey", userID), limit, decodeNotificationEntity)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, len(ents))
	for i, e := range ents {
		out[i] = e.toDomain()
	}
	return out, nil
}

// MarkNotificationRead flags one of the user's notifications as read.
func (s *Storage) MarkNotificationRead(ctx context.Context, userID, id string) error {
	ents, err := listEntities(ctx, s.notifications, and(eq("PartitionKey", userID), eq("Id", id)), 1, decodeNotificationEntity)
	if err != nil {
		return err
	}
	if len(ents) == 0 {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return mergeEntity(ctx, s.notifications, notificationReadUpdate{PartitionKey: userID, RowKey: ents[0].RowKey, IsRead: true})
}

// MarkAllNotificationsRead flags every unread notification of the user.
func (s *Storage) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	ents, err := listEntities(ctx, s.notifications, and(eq("PartitionKey", userID), "IsRead eq false"), 0, decodeNotificationEntity)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if err := mergeEntity(ctx, s.notifications, notificationReadUpdate{PartitionKey: userID, RowKey: e.RowKey, IsRead: true}); err != nil {
			return err
		}
	}
	return nil
}
