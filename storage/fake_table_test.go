package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

type rowKey struct{ pk, rk string }

// fakeTable keeps entities in memory and understands the small OData subset
// the storage layer emits: `Field eq 'v'`, `Field eq true|false`, joined by and.
type fakeTable struct {
	mu   sync.Mutex
	rows map[rowKey]map[string]any
}

func newFakeTable() *fakeTable { return &fakeTable{rows: map[rowKey]map[string]any{}} }

func decodeRow(entity []byte) (rowKey, map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(entity, &m); err != nil {
		return rowKey{}, nil, err
	}
	pk, _ := m["PartitionKey"].(string)
	rk, _ := m["RowKey"].(string)
	return rowKey{pk, rk}, m, nil
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	key, m, err := decodeRow(entity)
	if err != nil {
		return aztables.AddEntityResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[key]; ok {
		return aztables.AddEntityResponse{}, &azcore.ResponseError{StatusCode: 409}
	}
	f.rows[key] = m
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTable) UpsertEntity(ctx context.Context, entity []byte, _ *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	key, m, err := decodeRow(entity)
	if err != nil {
		return aztables.UpsertEntityResponse{}, err
	}
	f.mu.Lock()
	f.rows[key] = m
	f.mu.Unlock()
	return aztables.UpsertEntityResponse{}, nil
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	key, m, err := decodeRow(entity)
	if err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[key]
	if !ok {
		return aztables.UpdateEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	if o != nil && o.UpdateMode == aztables.UpdateModeMerge {
		for k, v := range m {
			cur[k] = v
		}
		return aztables.UpdateEntityResponse{}, nil
	}
	f.rows[key] = m
	return aztables.UpdateEntityResponse{}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, _ *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rowKey{pk, rk}
	if _, ok := f.rows[key]; !ok {
		return aztables.DeleteEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	delete(f.rows, key)
	return aztables.DeleteEntityResponse{}, nil
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[rowKey{pk, rk}]
	if !ok {
		return aztables.GetEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return aztables.GetEntityResponse{}, err
	}
	return aztables.GetEntityResponse{Value: data}, nil
}

func (f *fakeTable) NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	filter := ""
	if o != nil && o.Filter != nil {
		filter = *o.Filter
	}
	f.mu.Lock()
	keys := make([]rowKey, 0, len(f.rows))
	for k, m := range f.rows {
		if matches(m, filter) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pk != keys[j].pk {
			return keys[i].pk < keys[j].pk
		}
		return keys[i].rk < keys[j].rk
	})
	page := aztables.ListEntitiesResponse{}
	for _, k := range keys {
		data, _ := json.Marshal(f.rows[k])
		page.Entities = append(page.Entities, data)
	}
	f.mu.Unlock()

	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			return page, nil
		},
	})
}

func (f *fakeTable) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func matches(m map[string]any, filter string) bool {
	if filter == "" {
		return true
	}
	for _, clause := range strings.Split(filter, " and ") {
		parts := strings.SplitN(clause, " eq ", 2)
		if len(parts) != 2 {
			return false
		}
		field, want := parts[0], parts[1]
		got := m[field]
		switch want {
		case "true", "false":
			b, _ := got.(bool)
			if b != (want == "true") {
				return false
			}
		default:
			s, _ := got.(string)
			if s != strings.ReplaceAll(strings.Trim(want, "'"), "''", "'") {
				return false
			}
		}
	}
	return true
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (q *fakeQueue) EnqueueMessage(ctx context.Context, content string, _ *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return azqueue.EnqueueMessagesResponse{}, q.err
	}
	q.messages = append(q.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

type fakeTables struct {
	tasks, shares, order, notifications, audit, users *fakeTable
	queue                                             *fakeQueue
}

func newTestStorage() (*Storage, *fakeTables) {
	ft := &fakeTables{
		tasks:         newFakeTable(),
		shares:        newFakeTable(),
		order:         newFakeTable(),
		notifications: newFakeTable(),
		audit:         newFakeTable(),
		users:         newFakeTable(),
		queue:         &fakeQueue{},
	}
	s := &Storage{
		tasks:         ft.tasks,
		shares:        ft.shares,
		order:         ft.order,
		notifications: ft.notifications,
		audit:         ft.audit,
		users:         ft.users,
		notifyQueue:   ft.queue,
		logger:        log.New(),
	}
	return s, ft
}
