package natsconn

import (
	"testing"
	"time"
)

func TestEnvInt(t *testing.T) {
	if v := envInt("NATSCONN_TEST_NONEXISTENT", 42); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	t.Setenv("NATSCONN_TEST_INT", "7")
	if v := envInt("NATSCONN_TEST_INT", 42); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
	t.Setenv("NATSCONN_TEST_INT", "-3")
	if v := envInt("NATSCONN_TEST_INT", 42); v != 42 {
		t.Fatalf("expected fallback for negative value, got %d", v)
	}
}

func TestEnvDuration(t *testing.T) {
	if v := envDuration("NATSCONN_TEST_NONEXISTENT", 5*time.Second); v != 5*time.Second {
		t.Fatalf("expected 5s, got %s", v)
	}
	t.Setenv("NATSCONN_TEST_DUR", "3s")
	if v := envDuration("NATSCONN_TEST_DUR", 5*time.Second); v != 3*time.Second {
		t.Fatalf("expected 3s, got %s", v)
	}
}

func TestConnect_OptionalWithoutURL(t *testing.T) {
	t.Setenv("NATS_URL", "")
	nc, err := Connect(Options{Optional: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nc != nil {
		t.Fatal("expected nil connection when NATS is optional and unset")
	}
}

func TestConnect_RequiredWithoutURL(t *testing.T) {
	t.Setenv("NATS_URL", "")
	if _, err := Connect(Options{}); err == nil {
		t.Fatal("expected error when NATS_URL is required and unset")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(Options{
		URL:           "nats://127.0.0.1:19999",
		MaxReconnects: 1,
		ReconnectWait: 10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected connection error for unreachable server")
	}
}
