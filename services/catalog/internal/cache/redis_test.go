package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNewRedisCache_InvalidURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url", time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSet_RejectsUnencodableValue(t *testing.T) {
	c, err := NewRedisCache("redis://127.0.0.1:1/0", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()
	if err := c.Set(context.Background(), "k", make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}
}

// Runs against a real server when REDIS_URL is set.
func TestRedisCache_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	c, err := NewRedisCache(url, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()
	c.Prefix = "catalog-test:" + t.Name() + ":"
	ctx := context.Background()

	var got []string
	if ok, err := c.Get(ctx, "missing", &got); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "k", []string{"a", "b"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err := c.Get(ctx, "k", &got)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0] != "a" {
		t.Fatalf("expected [a b], got %v", got)
	}
}
