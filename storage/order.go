package storage

import (
	"context"
	"encoding/json"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

const edmInt32 = "Edm.Int32"

type orderEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Rank         int    `json:"Rank"`
	RankType     string `json:"Rank@odata.type,omitempty"`
}

// UpsertOrder writes one user's rank for one task.
func (s *Storage) UpsertOrder(ctx context.Context, e domain.OrderEntry) error {
	payload, err := json.Marshal(orderEntity{PartitionKey: e.UserID, RowKey: e.TaskID, Rank: e.Rank, RankType: edmInt32})
	if err != nil {
		return err
	}
	_, err = s.order.UpsertEntity(ctx, payload, nil)
	return err
}

// Ranks returns the user's manual ranks keyed by task identifier.
func (s *Storage) Ranks(ctx context.Context, userID string) (map[string]int, error) {
	entries, err := listEntities(ctx, s.order, eq("PartitionKey", userID), 0, func(data []byte) (orderEntity, error) {
		var ent orderEntity
		err := json.Unmarshal(data, &ent)
		return ent, err
	})
	if err != nil {
		return nil, err
	}
	ranks := make(map[string]int, len(entries))
	for _, e := range entries {
		ranks[e.RowKey] = e.Rank
	}
	return ranks, nil
}
