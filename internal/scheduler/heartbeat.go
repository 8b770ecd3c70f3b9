package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shipwrecked/fleetcore/internal/sessionmgr"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// defaultHeartbeatInterval is the fallback for any interval string this
// package's parser doesn't recognize (§4.H).
const defaultHeartbeatInterval = 30 * time.Minute

var freeformInterval = regexp.MustCompile(`^(\d+)([mh])$`)

// ParseInterval accepts the named presets {5m,15m,30m,1h,4h,daily} and
// free-form Nm/Nh, falling back to 30 minutes for anything else.
// Grounded on haasonsaas-nexus/internal/agents/heartbeat's preset-table
// pattern, generalized to also accept the free-form suffix forms.
func ParseInterval(raw string) time.Duration {
	switch strings.TrimSpace(raw) {
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "daily":
		return 24 * time.Hour
	}

	m := freeformInterval.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return defaultHeartbeatInterval
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return defaultHeartbeatInterval
	}
	switch m[2] {
	case "m":
		return time.Duration(n) * time.Minute
	case "h":
		return time.Duration(n) * time.Hour
	}
	return defaultHeartbeatInterval
}

var activeHoursTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// IsWithinActiveHours reports whether t, converted to the configured
// IANA timezone, falls within [start,end) on a 24-hour clock. A nil
// window or an unparseable config is treated as always active.
// Grounded on
// haasonsaas-nexus/internal/agents/heartbeat/active_hours.go's
// minutes-since-midnight comparison, including overnight wraparound
// (e.g. 22:00-06:00).
func IsWithinActiveHours(hours *models.ActiveHours, t time.Time) bool {
	if hours == nil {
		return true
	}
	loc, err := time.LoadLocation(hours.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)

	start, okStart := parseClockMinutes(hours.Start)
	end, okEnd := parseClockMinutes(hours.End)
	if !okStart || !okEnd {
		return true
	}
	cur := local.Hour()*60 + local.Minute()
	if start <= end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

func parseClockMinutes(s string) (int, bool) {
	m := activeHoursTimePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return h*60 + min, true
}

// HeartbeatOK is the sentinel response that suppresses delivery when
// HeartbeatConfig.SuppressOK is set: a response that equals it or
// contains it is not delivered (§4.H step 4).
const HeartbeatOK = "HEARTBEAT_OK"

// AgentSource resolves an agent's current HeartbeatConfig, the
// contents of its HEARTBEAT.md, and its directory (for the activity
// entry each tick appends to the agent's daily log).
type AgentSource interface {
	Get(slug string) (models.AgentConfig, error)
	ReadFile(slug, relPath string) (string, error)
	AgentDir(slug string) string
}

// HeartbeatRunner drives one recurring timer per registered agent,
// grounded on haasonsaas-nexus/internal/heartbeat.Runner's
// ticker-plus-stop-channel shape (here one Runner multiplexes every
// agent's own interval instead of one timer per long operation, since
// this spec's heartbeats are a per-agent background cadence rather
// than a progress indicator for a single call).
type HeartbeatRunner struct {
	agents     AgentSource
	dispatcher Dispatcher
	delivery   Delivery
	logger     *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewHeartbeatRunner builds a HeartbeatRunner.
func NewHeartbeatRunner(agents AgentSource, dispatcher Dispatcher, delivery Delivery, logger *slog.Logger) *HeartbeatRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &HeartbeatRunner{
		agents:     agents,
		dispatcher: dispatcher,
		delivery:   delivery,
		logger:     logger.With("component", "heartbeat"),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Register starts slug's recurring heartbeat timer, replacing any
// already running for that slug.
func (r *HeartbeatRunner) Register(ctx context.Context, slug string) {
	r.Unregister(slug)

	agent, err := r.agents.Get(slug)
	if err != nil || !agent.Heartbeat.Enabled {
		return
	}

	tickCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[slug] = cancel
	r.mu.Unlock()

	interval := ParseInterval(agent.Heartbeat.Interval)
	go r.run(tickCtx, slug, interval)
}

// Unregister stops slug's heartbeat timer, if any.
func (r *HeartbeatRunner) Unregister(slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[slug]; ok {
		cancel()
		delete(r.cancels, slug)
	}
}

func (r *HeartbeatRunner) run(ctx context.Context, slug string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, slug)
		}
	}
}

func (r *HeartbeatRunner) tick(ctx context.Context, slug string) {
	agent, err := r.agents.Get(slug)
	if err != nil {
		return
	}
	if !IsWithinActiveHours(agent.Heartbeat.ActiveHours, timeNow()) {
		return
	}

	checklist, err := r.agents.ReadFile(slug, "HEARTBEAT.md")
	if err != nil {
		r.logger.Error("read HEARTBEAT.md", "agent", slug, "error", err)
		return
	}

	prompt := buildHeartbeatPrompt(agent.Heartbeat.Mode, checklist)
	res, err := r.dispatcher.SendMessage(ctx, slug, fmt.Sprintf("heartbeat:%s", slug), prompt, sessionmgr.Context{})
	if err != nil {
		heartbeatTicksTotal.WithLabelValues(slug, "error").Inc()
		r.logger.Error("heartbeat dispatch failed", "agent", slug, "error", err)
		return
	}

	// The sentinel counts whether the response is exactly HEARTBEAT_OK
	// or merely contains it (§4.H step 4).
	text := strings.TrimSpace(res.Text)
	ok := text == HeartbeatOK || strings.Contains(text, HeartbeatOK)
	if ok && agent.Heartbeat.SuppressOK {
		heartbeatTicksTotal.WithLabelValues(slug, "ok").Inc()
		r.appendActivity(slug, "ok (suppressed)")
		return
	}
	if agent.Heartbeat.DeliverTo != "" && r.delivery != nil {
		if err := r.delivery.Deliver(ctx, agent.Heartbeat.DeliverTo, res.Text); err != nil {
			r.logger.Error("heartbeat delivery failed", "agent", slug, "error", err)
		}
	}
	heartbeatTicksTotal.WithLabelValues(slug, "delivered").Inc()
	r.appendActivity(slug, "completed")
}

// appendActivity writes a heartbeat activity entry to the agent's
// daily log. Every tick that produced a response gets one, including
// suppressed HEARTBEAT_OK ticks.
func (r *HeartbeatRunner) appendActivity(slug, note string) {
	now := timeNow()
	path := filepath.Join(r.agents.AgentDir(slug), "memory", now.Format("2006-01-02")+".md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.logger.Warn("append heartbeat activity", "agent", slug, "error", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "- %s heartbeat: %s\n", now.Format("15:04"), note)
}

func buildHeartbeatPrompt(mode, checklist string) string {
	var instruction string
	switch mode {
	case "work":
		instruction = "Review the checklist below and perform any work it calls for."
	default:
		instruction = "Review the checklist below and report your findings; do not take action."
	}
	return fmt.Sprintf("%s\n\n%s\n\nIf nothing needs attention, respond with exactly: %s", instruction, checklist, HeartbeatOK)
}
