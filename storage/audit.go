package storage

import (
	"context"
	"encoding/json"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

type auditEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	ID           string `json:"Id"`
	ActionType   string `json:"ActionType"`
	Message      string `json:"Message"`
	ActorID      string `json:"PerformedByUserId"`
	ActorEmail   string `json:"PerformedByEmail"`
	CreatedAt    string `json:"CreatedAt"`
}

// AppendAudit adds an entry to a task's history. Entries are never updated.
func (s *Storage) AppendAudit(ctx context.Context, e domain.AuditLogEntry) error {
	return addEntity(ctx, s.audit, auditEntity{
		PartitionKey: e.TaskID,
		RowKey:       newestFirstKey(nextTimestamp(), e.ID),
		ID:           e.ID,
		ActionType:   string(e.Action),
		Message:      e.Message,
		ActorID:      e.ActorID,
		ActorEmail:   e.ActorEmail,
		CreatedAt:    formatTime(e.CreatedAt),
	})
}

// AuditLog returns a task's history, newest first.
func (s *Storage) AuditLog(ctx context.Context, taskID string) ([]domain.AuditLogEntry, error) {
	return listEntities(ctx, s.audit, eq("PartitionKey", taskID), 0, func(data []byte) (domain.AuditLogEntry, error) {
		var ent auditEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return domain.AuditLogEntry{}, err
		}
		return domain.AuditLogEntry{
			ID:         ent.ID,
			TaskID:     ent.PartitionKey,
			Action:     domain.AuditAction(ent.ActionType),
			Message:    ent.Message,
			ActorID:    ent.ActorID,
			ActorEmail: ent.ActorEmail,
			CreatedAt:  parseTime(ent.CreatedAt),
		}, nil
	})
}
