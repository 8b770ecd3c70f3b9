// Package models holds plain data types shared across the orchestrator's
// internal packages: the normalized inbound/outbound message shapes, the
// session and agent records, and the cron/task records persisted to the
// store.
package models

import "time"

// ChannelType identifies a messaging channel implementation.
type ChannelType string

const (
	ChannelWeb      ChannelType = "web"
	ChannelTelegram ChannelType = "telegram"
	ChannelSlack    ChannelType = "slack"
	ChannelDiscord  ChannelType = "discord"
)

// InboundMessage is the normalized shape every channel adapter produces,
// regardless of the provider's own wire format.
type InboundMessage struct {
	Channel   ChannelType
	UserID    string
	ChatID    string // empty for a DM
	Text      string
	ThreadID  string
	Timestamp time.Time
	Raw       any // provider-specific payload, opaque to downstream code
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionIdle       SessionStatus = "idle"
	SessionTerminated SessionStatus = "terminated"
)

// Session binds a conversation to an external LLM subprocess session id.
type Session struct {
	ConversationID   string
	ExternalID       string
	AgentID          string
	Channel          ChannelType
	Status           SessionStatus
	CreatedAt        time.Time
	LastActiveAt     time.Time
	TurnCount        int
}

// ToolPreset names a static tool-allowlist bundle.
type ToolPreset string

const (
	PresetNone      ToolPreset = "none"
	PresetCoding    ToolPreset = "coding"
	PresetMessaging ToolPreset = "messaging"
	PresetFull      ToolPreset = "full"
	PresetCustom    ToolPreset = "custom"
)

// AgentConfig is the declared configuration for one agent slug.
type AgentConfig struct {
	Slug               string            `json:"slug"`
	DisplayName        string            `json:"displayName"`
	Model              string            `json:"model"`
	ToolPreset         ToolPreset        `json:"toolPreset"`
	CustomTools        []string          `json:"customTools,omitempty"`
	ToolServers        []string          `json:"toolServers,omitempty"`
	Skills             []string          `json:"skills,omitempty"`
	Heartbeat          HeartbeatConfig   `json:"heartbeat"`
	ReflectionInterval string            `json:"reflectionInterval,omitempty"`
	MaxAutonomousTurns int               `json:"maxAutonomousTurns,omitempty"`
	Notifications      NotificationConfig `json:"notifications"`
	Admin              AdminCapabilities  `json:"admin"`
}

// HeartbeatConfig controls an agent's recurring self-review cycle.
type HeartbeatConfig struct {
	Enabled      bool   `json:"enabled"`
	Interval     string `json:"interval"` // "5m","15m","30m","1h","4h","daily", or "Nm"/"Nh"
	Mode         string `json:"mode"`     // "check" | "work"
	ActiveHours  *ActiveHours `json:"activeHours,omitempty"`
	DeliverTo    string `json:"deliverTo,omitempty"` // "channel:target"
	SuppressOK   bool   `json:"suppressOk"`
}

// ActiveHours gates heartbeat ticks to a daily window in a named timezone.
type ActiveHours struct {
	Start    string `json:"start"` // "HH:MM", 24h clock
	End      string `json:"end"`
	Timezone string `json:"timezone"` // IANA zone name
}

// NotificationConfig controls which events are surfaced to the user.
type NotificationConfig struct {
	OnError    bool `json:"onError"`
	OnHeartbeat bool `json:"onHeartbeat"`
}

// AdminCapabilities gates sensitive IPC/tool operations for an agent.
type AdminCapabilities struct {
	CanManageAgents bool `json:"canManageAgents"`
	CanManageCron   bool `json:"canManageCron"`
}

// RoutingRule declaratively maps an inbound triple to an agent.
type RoutingRule struct {
	Channel       ChannelType `json:"channel"`
	ChannelUserID string      `json:"channelUserId,omitempty"`
	ChatID        string      `json:"chatId,omitempty"`
	AgentID       string      `json:"agentId"`
}

// CronJob is a recurring, prompt-firing scheduled job.
type CronJob struct {
	ID         int64
	Name       string
	Expression string
	AgentID    string
	Prompt     string
	DeliverTo  string // "channel:target", optional
	Enabled    bool
	LastRunAt  time.Time
}

// TaskStatus is the lifecycle state of a QueuedTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskExpired   TaskStatus = "expired"
)

// QueuedTask is a one-shot deferred prompt.
type QueuedTask struct {
	ID             int64
	AgentID        string
	ConversationID string
	Prompt         string
	Description    string
	ExecuteAt      time.Time
	Status         TaskStatus
	RetryCount     int
	Result         string
	Error          string
	CompletedAt    time.Time
}

// UserMapping binds a channel-scoped user identity to an agent slug,
// consulted by the router only when no routing rule matches.
type UserMapping struct {
	Channel       ChannelType
	ChannelUserID string
	AgentID       string
}

// DelegationStatus is the lifecycle state of a Delegation.
type DelegationStatus string

const (
	DelegationPending    DelegationStatus = "pending"
	DelegationAccepted   DelegationStatus = "accepted"
	DelegationInProgress DelegationStatus = "in_progress"
	DelegationCompleted  DelegationStatus = "completed"
	DelegationFailed     DelegationStatus = "failed"
)

// Delegation is an inter-agent assignment recorded as one JSON file per
// delegation under collaborations/delegations/<id>.json.
type Delegation struct {
	ID          string           `json:"id"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Task        string           `json:"task"`
	Context     string           `json:"context,omitempty"`
	Constraints string           `json:"constraints,omitempty"`
	Status      DelegationStatus `json:"status"`
	Result      string           `json:"result,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// TopicMessage is one append-only pub/sub message published under
// collaborations/topics/<topic>/.
type TopicMessage struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Sender    string    `json:"sender"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscription binds an agent to a topic it wants to receive messages
// from. The pair (AgentID, Topic) is unique.
type Subscription struct {
	AgentID   string    `json:"agentId"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"createdAt"`
}
