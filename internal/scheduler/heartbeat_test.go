package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shipwrecked/fleetcore/internal/sessionmgr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

func TestParseIntervalPresets(t *testing.T) {
	cases := map[string]time.Duration{
		"5m":    5 * time.Minute,
		"15m":   15 * time.Minute,
		"30m":   30 * time.Minute,
		"1h":    time.Hour,
		"4h":    4 * time.Hour,
		"daily": 24 * time.Hour,
		"10m":   10 * time.Minute,
		"2h":    2 * time.Hour,
		"":      defaultHeartbeatInterval,
		"bogus": defaultHeartbeatInterval,
		"0m":    defaultHeartbeatInterval,
	}
	for raw, want := range cases {
		if got := ParseInterval(raw); got != want {
			t.Errorf("ParseInterval(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestIsWithinActiveHoursNormalRange(t *testing.T) {
	hours := &models.ActiveHours{Start: "09:00", End: "17:00", Timezone: "UTC"}

	inside := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

	if !IsWithinActiveHours(hours, inside) {
		t.Fatal("expected 12:00 to be within 09:00-17:00")
	}
	if IsWithinActiveHours(hours, outside) {
		t.Fatal("expected 20:00 to be outside 09:00-17:00")
	}
}

func TestIsWithinActiveHoursOvernightWraparound(t *testing.T) {
	hours := &models.ActiveHours{Start: "22:00", End: "06:00", Timezone: "UTC"}

	lateNight := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !IsWithinActiveHours(hours, lateNight) {
		t.Fatal("expected 23:00 to be within overnight window")
	}
	if !IsWithinActiveHours(hours, earlyMorning) {
		t.Fatal("expected 03:00 to be within overnight window")
	}
	if IsWithinActiveHours(hours, midday) {
		t.Fatal("expected 12:00 to be outside overnight window")
	}
}

func TestIsWithinActiveHoursRespectsTimezone(t *testing.T) {
	hours := &models.ActiveHours{Start: "09:00", End: "17:00", Timezone: "America/New_York"}
	// 14:00 UTC is 09:00 or 10:00 America/New_York depending on DST; pick a
	// clearly-inside UTC instant (15:00 UTC -> 10/11 ET) and a clearly-outside one.
	inside := time.Date(2026, 1, 1, 15, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)

	if !IsWithinActiveHours(hours, inside) {
		t.Fatal("expected instant to be within America/New_York business hours")
	}
	if IsWithinActiveHours(hours, outside) {
		t.Fatal("expected instant to be outside America/New_York business hours")
	}
}

func TestIsWithinActiveHoursNilIsAlwaysActive(t *testing.T) {
	if !IsWithinActiveHours(nil, time.Now()) {
		t.Fatal("nil active hours should always be active")
	}
}

func TestBuildHeartbeatPromptIncludesOKSentinel(t *testing.T) {
	prompt := buildHeartbeatPrompt("check", "- [ ] review inbox")
	if !contains(prompt, HeartbeatOK) {
		t.Fatalf("expected prompt to instruct the %s sentinel, got %q", HeartbeatOK, prompt)
	}
	if !contains(prompt, "review inbox") {
		t.Fatalf("expected prompt to include the checklist, got %q", prompt)
	}
}

type fakeAgentSource struct {
	dir   string
	agent models.AgentConfig
}

func (f *fakeAgentSource) Get(slug string) (models.AgentConfig, error) { return f.agent, nil }
func (f *fakeAgentSource) ReadFile(slug, rel string) (string, error) {
	return "- [ ] review open work", nil
}
func (f *fakeAgentSource) AgentDir(slug string) string { return f.dir }

type textDispatcher struct{ text string }

func (d *textDispatcher) SendMessage(ctx context.Context, agentID, conversationID, prompt string, chCtx sessionmgr.Context) (*sessionmgr.Result, error) {
	return &sessionmgr.Result{Text: d.text}, nil
}

func newHeartbeatAgentDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "memory"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func readActivityLog(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "memory", time.Now().Format("2006-01-02")+".md"))
	if err != nil {
		t.Fatalf("read daily log: %v", err)
	}
	return string(data)
}

func TestHeartbeatTickSuppressesOKButWritesActivity(t *testing.T) {
	dir := newHeartbeatAgentDir(t)
	src := &fakeAgentSource{dir: dir, agent: models.AgentConfig{
		Slug: "jarvis",
		Heartbeat: models.HeartbeatConfig{
			Enabled:    true,
			SuppressOK: true,
			DeliverTo:  "slack:#alerts",
		},
	}}
	delivery := &recordingDelivery{}
	r := NewHeartbeatRunner(src, &textDispatcher{text: HeartbeatOK}, delivery, nil)

	r.tick(context.Background(), "jarvis")

	delivery.mu.Lock()
	if len(delivery.targets) != 0 {
		t.Fatalf("HEARTBEAT_OK with suppressOk must not deliver, got %v", delivery.targets)
	}
	delivery.mu.Unlock()

	if log := readActivityLog(t, dir); !contains(log, "heartbeat: ok") {
		t.Fatalf("activity entry missing from daily log: %q", log)
	}
}

func TestHeartbeatTickContainedSentinelAlsoSuppresses(t *testing.T) {
	dir := newHeartbeatAgentDir(t)
	src := &fakeAgentSource{dir: dir, agent: models.AgentConfig{
		Slug: "jarvis",
		Heartbeat: models.HeartbeatConfig{
			Enabled:    true,
			SuppressOK: true,
			DeliverTo:  "slack:#alerts",
		},
	}}
	delivery := &recordingDelivery{}
	r := NewHeartbeatRunner(src, &textDispatcher{text: "All clear. HEARTBEAT_OK"}, delivery, nil)

	r.tick(context.Background(), "jarvis")

	delivery.mu.Lock()
	defer delivery.mu.Unlock()
	if len(delivery.targets) != 0 {
		t.Fatalf("contained sentinel with suppressOk must not deliver, got %v", delivery.targets)
	}
}

func TestHeartbeatTickDeliversNonOKResponse(t *testing.T) {
	dir := newHeartbeatAgentDir(t)
	src := &fakeAgentSource{dir: dir, agent: models.AgentConfig{
		Slug: "jarvis",
		Heartbeat: models.HeartbeatConfig{
			Enabled:    true,
			SuppressOK: true,
			DeliverTo:  "slack:#alerts",
		},
	}}
	delivery := &recordingDelivery{}
	r := NewHeartbeatRunner(src, &textDispatcher{text: "disk nearly full"}, delivery, nil)

	r.tick(context.Background(), "jarvis")

	delivery.mu.Lock()
	if len(delivery.targets) != 1 || delivery.targets[0] != "slack:#alerts" {
		t.Fatalf("want delivery to slack:#alerts, got %v", delivery.targets)
	}
	delivery.mu.Unlock()

	if log := readActivityLog(t, dir); !contains(log, "heartbeat: completed") {
		t.Fatalf("activity entry missing from daily log: %q", log)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
