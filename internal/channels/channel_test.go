package channels

import (
	"context"
	"testing"
	"time"

	"github.com/shipwrecked/fleetcore/pkg/models"
)

type fakeAdapter struct {
	typ      models.ChannelType
	started  bool
	stopped  bool
	msgs     chan models.InboundMessage
	sent     []string
	startErr error
}

func (f *fakeAdapter) Type() models.ChannelType { return f.typ }
func (f *fakeAdapter) Start(ctx context.Context) error {
	f.started = true
	return f.startErr
}
func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.stopped = true
	close(f.msgs)
	return nil
}
func (f *fakeAdapter) Send(ctx context.Context, chatID, text string) error {
	f.sent = append(f.sent, chatID+":"+text)
	return nil
}
func (f *fakeAdapter) Messages() <-chan models.InboundMessage { return f.msgs }
func (f *fakeAdapter) Status() Status                         { return Status{Connected: f.started} }
func (f *fakeAdapter) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{Healthy: f.started, LastCheck: time.Now()}
}

func newFake(t models.ChannelType) *fakeAdapter {
	return &fakeAdapter{typ: t, msgs: make(chan models.InboundMessage, 4)}
}

func TestRegistryDispatchesByCapability(t *testing.T) {
	r := NewRegistry()
	tg := newFake(models.ChannelTelegram)
	r.Register(tg)

	if _, ok := r.Get(models.ChannelTelegram); !ok {
		t.Fatal("expected telegram adapter registered")
	}
	out, ok := r.GetOutbound(models.ChannelTelegram)
	if !ok {
		t.Fatal("expected telegram outbound adapter")
	}
	if err := out.Send(context.Background(), "chat1", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tg.sent) != 1 || tg.sent[0] != "chat1:hi" {
		t.Fatalf("unexpected sent log: %v", tg.sent)
	}

	health := r.HealthAdapters()
	if _, ok := health[models.ChannelTelegram]; !ok {
		t.Fatal("expected telegram in health adapters")
	}
}

func TestStartAllAndStopAll(t *testing.T) {
	r := NewRegistry()
	a := newFake(models.ChannelSlack)
	b := newFake(models.ChannelDiscord)
	r.Register(a)
	r.Register(b)

	ctx := context.Background()
	if err := r.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !a.started || !b.started {
		t.Fatal("expected both adapters started")
	}

	if err := r.StopAll(ctx); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if !a.stopped || !b.stopped {
		t.Fatal("expected both adapters stopped")
	}
}

func TestAggregateMessagesFansIn(t *testing.T) {
	r := NewRegistry()
	a := newFake(models.ChannelTelegram)
	b := newFake(models.ChannelSlack)
	r.Register(a)
	r.Register(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := r.AggregateMessages(ctx)

	a.msgs <- models.InboundMessage{Channel: models.ChannelTelegram, Text: "from a"}
	b.msgs <- models.InboundMessage{Channel: models.ChannelSlack, Text: "from b"}
	close(a.msgs)
	close(b.msgs)

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-out:
			seen[msg.Text] = true
		case <-timeout:
			t.Fatal("timed out waiting for aggregated messages")
		}
	}
	if !seen["from a"] || !seen["from b"] {
		t.Fatalf("expected both messages, got %v", seen)
	}

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected output channel closed after all sources close")
		}
	case <-timeout:
		t.Fatal("timed out waiting for output channel close")
	}
}
