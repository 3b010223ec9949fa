package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

// Users are keyed by normalized email so sign-in is a point lookup.
type userEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	UserID       string `json:"UserId"`
	PasswordHash string `json:"PasswordHash"`
	Verified     bool   `json:"Verified"`
	CreatedAt    string `json:"CreatedAt"`
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           ent.UserID,
		Email:        ent.RowKey,
		PasswordHash: ent.PasswordHash,
		Verified:     ent.Verified,
		CreatedAt:    parseTime(ent.CreatedAt),
	}, nil
}

// CreateUser registers a new account; an existing email yields
// domain.ErrEmailTaken.
func (s *Storage) CreateUser(ctx context.Context, u domain.User) error {
	email := domain.NormalizeEmail(u.Email)
	err := addEntity(ctx, s.users, userEntity{
		PartitionKey: email,
		RowKey:       email,
		UserID:       u.ID,
		PasswordHash: u.PasswordHash,
		Verified:     u.Verified,
		CreatedAt:    formatTime(u.CreatedAt),
	})
	if isConflict(err) {
		return domain.ErrEmailTaken
	}
	return err
}

// UserByEmail finds an account by email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	resp, err := s.users.GetEntity(ctx, email, email, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.User{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
		}
		return domain.User{}, err
	}
	return decodeUserEntity(resp.Value)
}

// UserByID finds an account by identifier.
func (s *Storage) UserByID(ctx context.Context, id string) (domain.User, error) {
	users, err := listEntities(ctx, s.users, eq("UserId", id), 1, decodeUserEntity)
	if err != nil {
		return domain.User{}, err
	}
	if len(users) == 0 {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return users[0], nil
}
