package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

// Shares are keyed by task and collaborator email, so the table itself
// rejects a second share to the same address.
type shareEntity struct {
	PartitionKey     string `json:"PartitionKey"`
	RowKey           string `json:"RowKey"`
	ID               string `json:"Id"`
	OwnerID          string `json:"OwnerId"`
	SharedWithUserID string `json:"SharedWithUserId"`
	CreatedAt        string `json:"CreatedAt"`
}

type shareResolveUpdate struct {
	PartitionKey     string `json:"PartitionKey"`
	RowKey           string `json:"RowKey"`
	SharedWithUserID string `json:"SharedWithUserId"`
}

func decodeShareEntity(data []byte) (domain.Share, error) {
	var ent shareEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Share{}, err
	}
	return domain.Share{
		ID:        ent.ID,
		TaskID:    ent.PartitionKey,
		Email:     ent.RowKey,
		OwnerID:   ent.OwnerID,
		UserID:    ent.SharedWithUserID,
		CreatedAt: parseTime(ent.CreatedAt),
	}, nil
}

func isMissing(err error) bool { return errors.Is(err, domain.ErrNotFound) }

// AddShare records a new share; a second share to the same email fails with
// domain.ErrAlreadyShared.
func (s *Storage) AddShare(ctx context.Context, sh domain.Share) error {
	ent := shareEntity{
		PartitionKey:     sh.TaskID,
		RowKey:           domain.NormalizeEmail(sh.Email),
		ID:               sh.ID,
		OwnerID:          sh.OwnerID,
		SharedWithUserID: sh.UserID,
		CreatedAt:        formatTime(sh.CreatedAt),
	}
	if err := addEntity(ctx, s.shares, ent); err != nil {
		if isConflict(err) {
			return domain.ErrAlreadyShared
		}
		return err
	}
	return nil
}

// GetShare returns the share of a task for one email.
func (s *Storage) GetShare(ctx context.Context, taskID, email string) (domain.Share, error) {
	resp, err := s.shares.GetEntity(ctx, taskID, domain.NormalizeEmail(email), nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Share{}, fmt.Errorf("share %s/%s: %w", taskID, email, domain.ErrNotFound)
		}
		return domain.Share{}, err
	}
	return decodeShareEntity(resp.Value)
}

// Shares lists every share of a task.
func (s *Storage) Shares(ctx context.Context, taskID string) ([]domain.Share, error) {
	return listEntities(ctx, s.shares, eq("PartitionKey", taskID), 0, decodeShareEntity)
}

// DeleteShare removes a share. Only the task owner's shares match.
func (s *Storage) DeleteShare(ctx context.Context, ownerID, taskID, email string) error {
	sh, err := s.GetShare(ctx, taskID, email)
	if err != nil {
		return err
	}
	if sh.OwnerID != ownerID {
		return fmt.Errorf("share %s/%s: %w", taskID, email, domain.ErrNotFound)
	}
	if _, err := s.shares.DeleteEntity(ctx, sh.TaskID, sh.Email, nil); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("share %s/%s: %w", taskID, email, domain.ErrNotFound)
		}
		return err
	}
	return nil
}

// ResolveShares links every pending share addressed to email to userID.
func (s *Storage) ResolveShares(ctx context.Context, email, userID string) ([]domain.Share, error) {
	shares, err := listEntities(ctx, s.shares, eq("RowKey", domain.NormalizeEmail(email)), 0, decodeShareEntity)
	if err != nil {
		return nil, err
	}
	resolved := make([]domain.Share, 0, len(shares))
	for _, sh := range shares {
		if sh.UserID == userID {
			continue
		}
		upd := shareResolveUpdate{PartitionKey: sh.TaskID, RowKey: sh.Email, SharedWithUserID: userID}
		if err := mergeEntity(ctx, s.shares, upd); err != nil {
			return resolved, err
		}
		sh.UserID = userID
		resolved = append(resolved, sh)
	}
	return resolved, nil
}
