package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/wecom-tools/quarkbot/internal/platform/cache"
	"github.com/wecom-tools/quarkbot/internal/platform/cache/redis"
)

func newCache(t *testing.T) *redis.Cache {
	t.Helper()
	s := miniredis.RunT(t)

	c, err := redis.New(redis.Options{
		Addr:          s.Addr(),
		DialTimeoutMS: 1000,
	})
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_FailFastUnreachable(t *testing.T) {
	_, err := redis.New(redis.Options{
		Addr:          "localhost:59999",
		DialTimeoutMS: 100,
	})
	if err == nil {
		t.Fatal("expected error when connecting to an unreachable server, got nil")
	}
}

func TestSetGetDelete(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected 'value1', got %q", string(val))
	}

	exists, err := c.Exists(ctx, "key1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected key to exist")
	}

	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = c.Exists(ctx, "key1")
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected key to not exist after delete")
	}
}

func TestGetMissing(t *testing.T) {
	c := newCache(t)

	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestBinaryValue(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	raw := []byte{0x00, 0xff, 0x10, 0x00, 0x7f}
	if err := c.Set(ctx, "bin", raw, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := c.Get(ctx, "bin")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(val) != len(raw) {
		t.Fatalf("got %d bytes, want %d", len(val), len(raw))
	}
	for i := range raw {
		if val[i] != raw[i] {
			t.Fatalf("byte %d = %x, want %x", i, val[i], raw[i])
		}
	}
}
