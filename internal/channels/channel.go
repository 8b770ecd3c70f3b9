// Package channels defines the adapter contract every messaging channel
// implementation satisfies, and a Registry that aggregates them by
// capability (§4.G). An adapter implements only the capability
// interfaces it can support; the registry type-asserts each one in.
package channels

import (
	"context"
	"sync"
	"time"

	"github.com/shipwrecked/fleetcore/pkg/models"
)

// Adapter is the minimum every channel implementation provides.
type Adapter interface {
	Type() models.ChannelType
}

// LifecycleAdapter starts and stops the adapter's connection to its
// provider (a long poll, a websocket, an HTTP listener).
type LifecycleAdapter interface {
	Adapter
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboundAdapter sends a message to a chat/user on the channel.
type OutboundAdapter interface {
	Adapter
	Send(ctx context.Context, chatID, text string) error
}

// InboundAdapter exposes a channel of normalized inbound messages.
type InboundAdapter interface {
	Adapter
	Messages() <-chan models.InboundMessage
}

// Status reports an adapter's current connection state.
type Status struct {
	Connected bool
	Error     string
	LastPing  time.Time
}

// HealthStatus is the richer, periodic health-check result.
type HealthStatus struct {
	Healthy   bool
	Latency   time.Duration
	Message   string
	LastCheck time.Time
	Degraded  bool
}

// HealthAdapter reports liveness beyond the basic connected/disconnected
// Status, for adapters that can probe their provider's API.
type HealthAdapter interface {
	Adapter
	Status() Status
	HealthCheck(ctx context.Context) HealthStatus
}

// TypingAdapter sends a typing indicator. Providers without one (e.g.
// the bare web channel) simply don't implement this interface; callers
// treat its absence as a silent no-op rather than an error (§4.G).
type TypingAdapter interface {
	Adapter
	SendTyping(ctx context.Context, chatID string) error
}

// ChannelInfoAdapter reports static metadata about a chat/channel
// (e.g. display name, member count) for providers that expose it.
type ChannelInfoAdapter interface {
	Adapter
	ChannelInfo(ctx context.Context, chatID string) (map[string]any, error)
}

// FullAdapter is the union of every capability; most real adapters
// implement this, but the registry never requires it.
type FullAdapter interface {
	LifecycleAdapter
	OutboundAdapter
	InboundAdapter
	HealthAdapter
}

// Registry holds every registered adapter, indexed by capability so
// callers can ask "give me every OutboundAdapter" without type-asserting
// themselves.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[models.ChannelType]Adapter
	inbound   map[models.ChannelType]InboundAdapter
	outbound  map[models.ChannelType]OutboundAdapter
	lifecycle map[models.ChannelType]LifecycleAdapter
	health    map[models.ChannelType]HealthAdapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[models.ChannelType]Adapter),
		inbound:   make(map[models.ChannelType]InboundAdapter),
		outbound:  make(map[models.ChannelType]OutboundAdapter),
		lifecycle: make(map[models.ChannelType]LifecycleAdapter),
		health:    make(map[models.ChannelType]HealthAdapter),
	}
}

// Register adds an adapter, type-asserting it into every capability map
// it satisfies.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := a.Type()
	r.adapters[t] = a
	if in, ok := a.(InboundAdapter); ok {
		r.inbound[t] = in
	}
	if out, ok := a.(OutboundAdapter); ok {
		r.outbound[t] = out
	}
	if lc, ok := a.(LifecycleAdapter); ok {
		r.lifecycle[t] = lc
	}
	if h, ok := a.(HealthAdapter); ok {
		r.health[t] = h
	}
}

// Get returns the adapter registered for a channel type, if any.
func (r *Registry) Get(t models.ChannelType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	return a, ok
}

// GetOutbound returns the OutboundAdapter for a channel type, if any.
func (r *Registry) GetOutbound(t models.ChannelType) (OutboundAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.outbound[t]
	return a, ok
}

// HealthAdapters returns every registered adapter capable of reporting
// health, keyed by channel type.
func (r *Registry) HealthAdapters() map[models.ChannelType]HealthAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.ChannelType]HealthAdapter, len(r.health))
	for k, v := range r.health {
		out[k] = v
	}
	return out
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// StartAll starts every LifecycleAdapter, returning the first error
// encountered (after attempting to start the rest).
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	lifecycle := make([]LifecycleAdapter, 0, len(r.lifecycle))
	for _, lc := range r.lifecycle {
		lifecycle = append(lifecycle, lc)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, lc := range lifecycle {
		if err := lc.Start(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopAll stops every LifecycleAdapter, collecting but not short-
// circuiting on error so one stuck adapter doesn't block the rest.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	lifecycle := make([]LifecycleAdapter, 0, len(r.lifecycle))
	for _, lc := range r.lifecycle {
		lifecycle = append(lifecycle, lc)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, lc := range lifecycle {
		if err := lc.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AggregateMessages fans in every registered InboundAdapter's channel
// into one, closing the output once every source has closed.
func (r *Registry) AggregateMessages(ctx context.Context) <-chan models.InboundMessage {
	r.mu.RLock()
	inbound := make([]InboundAdapter, 0, len(r.inbound))
	for _, in := range r.inbound {
		inbound = append(inbound, in)
	}
	r.mu.RUnlock()

	out := make(chan models.InboundMessage)
	var wg sync.WaitGroup
	wg.Add(len(inbound))
	for _, in := range inbound {
		go func(in InboundAdapter) {
			defer wg.Done()
			for {
				select {
				case msg, ok := <-in.Messages():
					if !ok {
						return
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
