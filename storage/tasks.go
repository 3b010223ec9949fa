package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

type taskEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	DueAt        string `json:"DueAt"`
	Priority     string `json:"Priority"`
	Complete     bool   `json:"Complete"`
	CreatedAt    string `json:"CreatedAt"`
}

type taskContentUpdate struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
	DueAt        string `json:"DueAt"`
	Priority     string `json:"Priority"`
}

type taskCompletionUpdate struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Complete     bool   `json:"Complete"`
}

func toTaskEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		PartitionKey: t.OwnerID,
		RowKey:       t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Priority:     string(t.Priority),
		Complete:     t.Complete,
		CreatedAt:    formatTime(t.CreatedAt),
	}
	if t.DueAt != nil {
		ent.DueAt = formatTime(*t.DueAt)
	}
	return ent
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		OwnerID:     ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Priority:    domain.Priority(ent.Priority),
		Complete:    ent.Complete,
		CreatedAt:   parseTime(ent.CreatedAt),
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if ent.DueAt != "" {
		due := parseTime(ent.DueAt)
		t.DueAt = &due
	}
	return t, nil
}

// InsertTask stores a new task under its owner.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	return addEntity(ctx, s.tasks, toTaskEntity(t))
}

// GetTask looks a task up by identifier regardless of owner.
func (s *Storage) GetTask(ctx context.Context, id string) (domain.Task, error) {
	tasks, err := listEntities(ctx, s.tasks, eq("RowKey", id), 1, decodeTaskEntity)
	if err != nil {
		return domain.Task{}, err
	}
	if len(tasks) == 0 {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return tasks[0], nil
}

func (s *Storage) getOwnedTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	resp, err := s.tasks.GetEntity(ctx, ownerID, id, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
		}
		return domain.Task{}, err
	}
	return decodeTaskEntity(resp.Value)
}

// CanAccess reports whether userID owns the task or holds a resolved share.
func (s *Storage) CanAccess(ctx context.Context, userID string, t domain.Task) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if t.OwnerID == userID {
		return true, nil
	}
	shares, err := listEntities(ctx, s.shares, and(eq("PartitionKey", t.ID), eq("SharedWithUserId", userID)), 1, decodeShareEntity)
	if err != nil {
		return false, err
	}
	return len(shares) > 0, nil
}

// visibleTask loads a task only if actorID may see it; otherwise the task is
// reported missing.
func (s *Storage) visibleTask(ctx context.Context, actorID, id string) (domain.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	ok, err := s.CanAccess(ctx, actorID, t)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

// UpdateTask replaces the content fields of a task the actor owns or
// collaborates on.
func (s *Storage) UpdateTask(ctx context.Context, actorID string, upd domain.TaskUpdate) (domain.Task, error) {
	t, err := s.visibleTask(ctx, actorID, upd.ID)
	if err != nil {
		return domain.Task{}, err
	}
	patch := taskContentUpdate{
		PartitionKey: t.OwnerID,
		RowKey:       t.ID,
		Title:        upd.Title,
		Description:  upd.Description,
		Priority:     string(upd.Priority),
	}
	if upd.DueAt != nil {
		patch.DueAt = formatTime(*upd.DueAt)
	}
	if err := mergeEntity(ctx, s.tasks, patch); err != nil {
		return domain.Task{}, err
	}
	t.Title = upd.Title
	t.Description = upd.Description
	t.DueAt = upd.DueAt
	t.Priority = upd.Priority
	return t, nil
}

// SetComplete sets the completion flag of a task the actor can access.
func (s *Storage) SetComplete(ctx context.Context, actorID, id string, complete bool) (domain.Task, error) {
	t, err := s.visibleTask(ctx, actorID, id)
	if err != nil {
		return domain.Task{}, err
	}
	patch := taskCompletionUpdate{PartitionKey: t.OwnerID, RowKey: t.ID, Complete: complete}
	if err := mergeEntity(ctx, s.tasks, patch); err != nil {
		return domain.Task{}, err
	}
	t.Complete = complete
	return t, nil
}

// DeleteTask removes one of the owner's tasks together with its shares.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	t, err := s.getOwnedTask(ctx, ownerID, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.deleteTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteCompleted removes every completed task the owner has.
func (s *Storage) DeleteCompleted(ctx context.Context, ownerID string) ([]domain.Task, error) {
	return s.deleteWhere(ctx, and(eq("PartitionKey", ownerID), "Complete eq true"))
}

// DeleteAll removes every task the owner has.
func (s *Storage) DeleteAll(ctx context.Context, ownerID string) ([]domain.Task, error) {
	return s.deleteWhere(ctx, eq("PartitionKey", ownerID))
}

func (s *Storage) deleteWhere(ctx context.Context, filter string) ([]domain.Task, error) {
	tasks, err := listEntities(ctx, s.tasks, filter, 0, decodeTaskEntity)
	if err != nil {
		return nil, err
	}
	deleted := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if err := s.deleteTask(ctx, t); err != nil {
			return deleted, err
		}
		deleted = append(deleted, t)
	}
	return deleted, nil
}

func (s *Storage) deleteTask(ctx context.Context, t domain.Task) error {
	if _, err := s.tasks.DeleteEntity(ctx, t.OwnerID, t.ID, nil); err != nil && !isNotFound(err) {
		return err
	}
	shares, err := s.Shares(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, sh := range shares {
		if _, err := s.shares.DeleteEntity(ctx, sh.TaskID, sh.Email, nil); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

// OwnedTasks lists every task the user owns.
func (s *Storage) OwnedTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	return listEntities(ctx, s.tasks, eq("PartitionKey", ownerID), 0, decodeTaskEntity)
}

// SharedTasks lists tasks other users shared with userID.
func (s *Storage) SharedTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	shares, err := listEntities(ctx, s.shares, eq("SharedWithUserId", userID), 0, decodeShareEntity)
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(shares))
	for _, sh := range shares {
		t, err := s.getOwnedTask(ctx, sh.OwnerID, sh.TaskID)
		if err != nil {
			if isMissing(err) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
