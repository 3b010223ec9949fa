package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestListCacheStoreThenLoad(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	cache := NewListCache(client, time.Minute)

	if _, ok := cache.Load(ctx, "u1"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	list := domain.TaskList{
		Incomplete: []domain.Task{{ID: "t1", Title: "Write code", Priority: domain.PriorityHigh}},
		Complete:   []domain.Task{},
	}
	cache.Store(ctx, "u1", cache.Generation(ctx, "u1"), list)

	got, ok := cache.Load(ctx, "u1")
	if !ok {
		t.Fatalf("expected hit")
	}
	if len(got.Incomplete) != 1 || got.Incomplete[0].ID != "t1" || got.Incomplete[0].Priority != domain.PriorityHigh {
		t.Fatalf("unexpected list: %#v", got)
	}
	if ttl := mr.TTL(tasksCacheKey("u1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestListCacheEvictDropsAllParticipants(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	cache := NewListCache(client, time.Minute)
	for _, id := range []string{"owner", "friend", "bystander"} {
		cache.Store(ctx, id, 0, domain.TaskList{})
	}

	cache.Evict(ctx, "owner", "", "friend")

	if mr.Exists(tasksCacheKey("owner")) || mr.Exists(tasksCacheKey("friend")) {
		t.Fatalf("expected participant lists evicted")
	}
	if !mr.Exists(tasksCacheKey("bystander")) {
		t.Fatalf("unrelated list evicted")
	}
}

func TestListCacheDropsCorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	if err := mr.Set(tasksCacheKey("u1"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cache := NewListCache(client, time.Minute)
	if _, ok := cache.Load(ctx, "u1"); ok {
		t.Fatalf("expected miss for corrupt entry")
	}
	if mr.Exists(tasksCacheKey("u1")) {
		t.Fatalf("corrupt entry not removed")
	}
}

func TestListCacheDisabled(t *testing.T) {
	ctx := context.Background()
	var nilCache *ListCache
	nilCache.Store(ctx, "u1", 0, domain.TaskList{})
	nilCache.Evict(ctx, "u1")
	if _, ok := nilCache.Load(ctx, "u1"); ok {
		t.Fatalf("nil cache must always miss")
	}

	mr, client := newTestRedis(t)
	cache := NewListCache(client, 0)
	cache.Store(ctx, "u1", 0, domain.TaskList{})
	if mr.Exists(tasksCacheKey("u1")) {
		t.Fatalf("zero TTL must not store")
	}
}

func TestListCacheSkipsListAssembledBeforeEvict(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	cache := NewListCache(client, time.Minute)

	gen := cache.Generation(ctx, "u1")
	if gen != 0 {
		t.Fatalf("expected generation 0, got %d", gen)
	}
	stale := domain.TaskList{Incomplete: []domain.Task{{ID: "t1", Title: "old"}}}

	// a mutation lands while the list is being assembled
	cache.Evict(ctx, "u1")
	cache.Store(ctx, "u1", gen, stale)
	if mr.Exists(tasksCacheKey("u1")) {
		t.Fatalf("list assembled before eviction was cached")
	}
	if ttl := mr.TTL(generationKey("u1")); ttl <= 0 {
		t.Fatalf("generation key must expire, ttl %v", ttl)
	}

	fresh := domain.TaskList{Incomplete: []domain.Task{{ID: "t1", Title: "new"}}}
	cache.Store(ctx, "u1", cache.Generation(ctx, "u1"), fresh)
	got, ok := cache.Load(ctx, "u1")
	if !ok || got.Incomplete[0].Title != "new" {
		t.Fatalf("expected fresh list cached, got %#v ok=%v", got, ok)
	}
}

func TestListCacheGenerationUnreadable(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	cache := NewListCache(client, time.Minute)
	if err := mr.Set(generationKey("u1"), "garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	gen := cache.Generation(ctx, "u1")
	if gen != -1 {
		t.Fatalf("expected -1 for unreadable generation, got %d", gen)
	}
	cache.Store(ctx, "u1", gen, domain.TaskList{})
	if mr.Exists(tasksCacheKey("u1")) {
		t.Fatalf("store must be skipped without a generation")
	}
}
