package sessionmgr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shipwrecked/fleetcore/internal/registry"
	"github.com/shipwrecked/fleetcore/pkg/models"
)

// fakeStore is an in-memory stand-in for internal/store.Store's session
// CRUD used by Manager.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newFakeStore() *fakeStore { return &fakeStore{sessions: map[string]*models.Session{}} }

func (f *fakeStore) GetSession(ctx context.Context, conversationID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[conversationID]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) UpsertSession(ctx context.Context, sess *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sess
	f.sessions[sess.ConversationID] = &cp
	return nil
}

func newTestManager(t *testing.T) (*Manager, *registry.Registry, *fakeStore) {
	t.Helper()
	root := t.TempDir()
	reg := registry.New(root, nil)
	if err := reg.Ensure(models.AgentConfig{Slug: "jarvis", ToolPreset: models.PresetCoding}); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	store := newFakeStore()
	m := New(reg, store, "fake-llm", root)
	return m, reg, store
}

func TestSendMessageFirstTurnHasNoResumeFlag(t *testing.T) {
	m, _, _ := newTestManager(t)

	var gotArgs []string
	m.spawn = func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error) {
		gotArgs = args
		return &spawnResult{FinalText: "hi there", ExternalID: "ext-1"}, nil
	}

	res, err := m.SendMessage(context.Background(), "jarvis", "conv-1", "hello", Context{Channel: models.ChannelSlack, UserID: "u1"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if res.Text != "hi there" || res.ExternalID != "ext-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, a := range gotArgs {
		if a == "--resume" {
			t.Fatalf("first turn should not pass --resume, got args %v", gotArgs)
		}
	}
}

func TestSendMessageResumesPriorSession(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.spawn = func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error) {
		return &spawnResult{FinalText: "turn one", ExternalID: "ext-abc"}, nil
	}
	if _, err := m.SendMessage(context.Background(), "jarvis", "conv-2", "first", Context{Channel: models.ChannelSlack, UserID: "u1"}); err != nil {
		t.Fatalf("first SendMessage: %v", err)
	}

	var gotResume string
	m.spawn = func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error) {
		for i, a := range args {
			if a == "--resume" && i+1 < len(args) {
				gotResume = args[i+1]
			}
		}
		return &spawnResult{FinalText: "turn two", ExternalID: "ext-abc"}, nil
	}
	if _, err := m.SendMessage(context.Background(), "jarvis", "conv-2", "second", Context{Channel: models.ChannelSlack, UserID: "u1"}); err != nil {
		t.Fatalf("second SendMessage: %v", err)
	}
	if gotResume != "ext-abc" {
		t.Fatalf("want resume flag ext-abc, got %q", gotResume)
	}
}

func TestSendMessageSpawnFailureReturnsSessionSpawnError(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.spawn = func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error) {
		return nil, &stderrError{cause: errors.New("exit status 1"), stderrTail: []string{"panic: boom"}}
	}

	_, err := m.SendMessage(context.Background(), "jarvis", "conv-3", "hello", Context{Channel: models.ChannelWeb, UserID: "u1"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSendMessageUnknownAgentFails(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.SendMessage(context.Background(), "ghost", "conv-4", "hi", Context{Channel: models.ChannelWeb}); err == nil {
		t.Fatal("expected agent-not-found error")
	}
}

func TestSendMessageSerializesPerConversation(t *testing.T) {
	m, _, _ := newTestManager(t)

	start := make(chan struct{})
	var order []int
	var mu sync.Mutex
	m.spawn = func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error) {
		<-start
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		return &spawnResult{FinalText: "ok", ExternalID: "ext"}, nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.SendMessage(context.Background(), "jarvis", "conv-shared", "a", Context{Channel: models.ChannelWeb})
	}()
	go func() {
		defer wg.Done()
		m.SendMessage(context.Background(), "jarvis", "conv-shared", "b", Context{Channel: models.ChannelWeb})
	}()
	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 {
		t.Fatalf("expected both turns to complete, got %d", len(order))
	}
}

func TestComposeSystemPromptIncludesSoulMemoryAndContext(t *testing.T) {
	m, reg, _ := newTestManager(t)
	if err := reg.WriteFile("jarvis", "SOUL.md", "I am Jarvis.\n"); err != nil {
		t.Fatalf("WriteFile SOUL.md: %v", err)
	}
	if err := reg.WriteFile("jarvis", "MEMORY.md", "- likes concise replies\n"); err != nil {
		t.Fatalf("WriteFile MEMORY.md: %v", err)
	}

	agent, err := reg.Get("jarvis")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	prompt, err := m.composeSystemPrompt(agent, Context{Channel: models.ChannelTelegram, UserID: "u9", ChatID: "c9"})
	if err != nil {
		t.Fatalf("composeSystemPrompt: %v", err)
	}
	for _, want := range []string{"I am Jarvis.", "likes concise replies", "telegram", "u9", "c9"} {
		if !contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestComposeSystemPromptIncludesDeclaredSkills(t *testing.T) {
	m, reg, _ := newTestManager(t)
	if err := reg.WriteFile("jarvis", "SOUL.md", "I am Jarvis.\n"); err != nil {
		t.Fatalf("WriteFile SOUL.md: %v", err)
	}

	skillDir := filepath.Join(m.dataRoot, "skills", "triage")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatalf("mkdir skill dir: %v", err)
	}
	content := "---\nname: triage\ndescription: how to triage incoming bugs\n---\n\nAlways reproduce first.\n"
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}

	agent, err := reg.Get("jarvis")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	agent.Skills = []string{"triage", "unshipped-skill"}

	prompt, err := m.composeSystemPrompt(agent, Context{Channel: models.ChannelWeb, UserID: "u1"})
	if err != nil {
		t.Fatalf("composeSystemPrompt: %v", err)
	}
	for _, want := range []string{"Skill: triage", "how to triage incoming bugs", "Always reproduce first."} {
		if !contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSendMessageFallsBackToFreshSessionOnResumeFailure(t *testing.T) {
	m, _, _ := newTestManager(t)

	m.spawn = func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error) {
		return &spawnResult{FinalText: "turn one", ExternalID: "ext-old"}, nil
	}
	if _, err := m.SendMessage(context.Background(), "jarvis", "conv-fb", "first", Context{Channel: models.ChannelWeb, UserID: "u1"}); err != nil {
		t.Fatalf("first SendMessage: %v", err)
	}

	var calls int
	m.spawn = func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error) {
		calls++
		for _, a := range args {
			if a == "--resume" {
				return nil, errors.New("session expired")
			}
		}
		return &spawnResult{FinalText: "fresh turn", ExternalID: "ext-new"}, nil
	}
	res, err := m.SendMessage(context.Background(), "jarvis", "conv-fb", "second", Context{Channel: models.ChannelWeb, UserID: "u1"})
	if err != nil {
		t.Fatalf("SendMessage after resume failure: %v", err)
	}
	if calls != 2 {
		t.Fatalf("want resume attempt then fresh retry, got %d spawn calls", calls)
	}
	if res.ExternalID != "ext-new" {
		t.Fatalf("want overwritten external id ext-new, got %q", res.ExternalID)
	}
	if id, ok := m.sessions.Get("conv-fb"); !ok || id != "ext-new" {
		t.Fatalf("session map not overwritten: %q %v", id, ok)
	}
}

func TestSendMessageBoundsTheTurnWithADeadline(t *testing.T) {
	m, _, _ := newTestManager(t)

	var hadDeadline bool
	m.spawn = func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error) {
		_, hadDeadline = ctx.Deadline()
		return &spawnResult{FinalText: "ok", ExternalID: "ext-d"}, nil
	}

	if _, err := m.SendMessage(context.Background(), "jarvis", "conv-deadline", "hi", Context{Channel: models.ChannelWeb, UserID: "u1"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !hadDeadline {
		t.Fatal("spawn context should carry the turn timeout deadline")
	}
}

func TestResumeSessionUnknownConversation(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.ResumeSession(context.Background(), "never-seen", "hi"); err == nil {
		t.Fatal("expected session-not-found error")
	}
}

func TestResumeSessionDispatchesToOwningAgent(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.spawn = func(ctx context.Context, cmdPath string, args []string, workDir string) (*spawnResult, error) {
		return &spawnResult{FinalText: "ok", ExternalID: "ext-r"}, nil
	}
	if _, err := m.SendMessage(context.Background(), "jarvis", "conv-r", "first", Context{Channel: models.ChannelSlack, UserID: "u1"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	res, err := m.ResumeSession(context.Background(), "conv-r", "again")
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if res.Text != "ok" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestBuildArgsCarriesModelToolsAndMaxTurns(t *testing.T) {
	m, reg, _ := newTestManager(t)
	agent, err := reg.Get("jarvis")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	agent.Model = "m-large"
	agent.MaxAutonomousTurns = 12

	args := m.buildArgs(agent, "sys", "hi", "/tmp/manifest.json", "")
	joined := ""
	for _, a := range args {
		joined += a + "\x00"
	}
	for _, want := range []string{"--model\x00m-large", "--max-turns\x0012", "--allowed-tools"} {
		if !contains(joined, want) {
			t.Fatalf("args missing %q: %v", want, args)
		}
	}
}

func TestComposeSystemPromptIncludesUserProfile(t *testing.T) {
	m, reg, _ := newTestManager(t)
	if err := os.WriteFile(filepath.Join(m.dataRoot, "USER.md"), []byte("Prefers short answers.\n"), 0o644); err != nil {
		t.Fatalf("write USER.md: %v", err)
	}
	agent, err := reg.Get("jarvis")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	prompt, err := m.composeSystemPrompt(agent, Context{Channel: models.ChannelWeb, UserID: "u1"})
	if err != nil {
		t.Fatalf("composeSystemPrompt: %v", err)
	}
	if !contains(prompt, "Prefers short answers.") {
		t.Fatalf("prompt missing user profile:\n%s", prompt)
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
