package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	store := NewRedisStore(&redis.Options{Addr: srv.Addr()}, "test:", ttl)
	t.Cleanup(func() { store.Close() })
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	return store, srv
}

func TestRedisStore(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	exerciseStore(t, store)
}

func TestRedisStoreSkipsExpiredEntries(t *testing.T) {
	store, srv := newTestRedisStore(t, time.Hour)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// The two newest analyses expire first.
	for i, url := range []string{"https://a/new1", "https://a/new2"} {
		if err := store.Put(ctx, result(url, base.Add(time.Duration(10+i)*time.Hour), 10000)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	srv.FastForward(40 * time.Minute)
	for i, url := range []string{"https://a/old1", "https://a/old2"} {
		if err := store.Put(ctx, result(url, base.Add(time.Duration(i)*time.Hour), 10000)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	srv.FastForward(30 * time.Minute)

	if _, ok, err := store.Get(ctx, "https://a/new1"); err != nil || ok {
		t.Fatalf("expired get: ok=%v err=%v", ok, err)
	}

	list, err := store.ListValuations(ctx, 2)
	if err != nil {
		t.Fatalf("ListValuations: %v", err)
	}
	if len(list) != 2 || list[0].URL != "https://a/old2" || list[1].URL != "https://a/old1" {
		t.Fatalf("list = %+v", list)
	}

	members, err := store.client.ZCard(ctx, store.indexKey()).Result()
	if err != nil {
		t.Fatalf("ZCard: %v", err)
	}
	if members != 2 {
		t.Fatalf("index should be pruned to live entries, has %d", members)
	}
}

func TestRedisStoreListPagesPastExpiredEntries(t *testing.T) {
	store, srv := newTestRedisStore(t, time.Hour)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < indexPage+5; i++ {
		url := fmt.Sprintf("https://a/stale/%d", i)
		if err := store.Put(ctx, result(url, base.Add(time.Duration(1000+i)*time.Minute), 10000)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	srv.FastForward(40 * time.Minute)
	if err := store.Put(ctx, result("https://a/live", base, 10000)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	srv.FastForward(30 * time.Minute)

	list, err := store.ListValuations(ctx, 1)
	if err != nil {
		t.Fatalf("ListValuations: %v", err)
	}
	if len(list) != 1 || list[0].URL != "https://a/live" {
		t.Fatalf("list = %+v", list)
	}
}
