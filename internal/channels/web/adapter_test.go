package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/shipwrecked/fleetcore/pkg/models"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestWebAdapterInboundAndOutbound(t *testing.T) {
	addr := freeAddr(t)
	a, err := NewAdapter(Config{Addr: addr})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)

	body, _ := json.Marshal(map[string]string{"chatId": "c1", "userId": "u1", "text": "hello"})
	resp, err := http.Post(fmt.Sprintf("http://%s/messages", addr), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("want 202, got %d", resp.StatusCode)
	}

	select {
	case msg := <-a.Messages():
		if msg.ChatID != "c1" || msg.Text != "hello" || msg.Channel != models.ChannelWeb {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}

	if err := a.Send(ctx, "c1", "reply"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	resp, err = http.Get(fmt.Sprintf("http://%s/outbound?chatId=c1", addr))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var pending []string
	if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pending) != 1 || pending[0] != "reply" {
		t.Fatalf("unexpected pending outbound: %v", pending)
	}
}

func TestWebAdapterRejectsMissingFields(t *testing.T) {
	addr := freeAddr(t)
	a, err := NewAdapter(Config{Addr: addr})
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	body, _ := json.Marshal(map[string]string{"text": "no chat id"})
	resp, err := http.Post(fmt.Sprintf("http://%s/messages", addr), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
}
