package discord

import (
	"context"
	"testing"

	"github.com/shipwrecked/fleetcore/pkg/models"
)

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(Config{}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestNewAdapterType(t *testing.T) {
	a, err := NewAdapter(Config{Token: "test-token"})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if a.Type() != models.ChannelDiscord {
		t.Fatalf("want ChannelDiscord, got %s", a.Type())
	}
}

func TestSendBeforeStartFails(t *testing.T) {
	a, err := NewAdapter(Config{Token: "test-token"})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if err := a.Send(context.Background(), "chan1", "hello"); err == nil {
		t.Fatal("expected error sending before Start")
	}
}

func TestHealthCheckNotConnected(t *testing.T) {
	a, err := NewAdapter(Config{Token: "test-token"})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	h := a.HealthCheck(context.Background())
	if h.Healthy {
		t.Fatal("expected unhealthy before Start")
	}
}
