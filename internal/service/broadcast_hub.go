package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-teamchat/internal/dto"
	"github.com/noah-isme/gema-teamchat/internal/observability"
)

// Member is anything that can receive frames from a broadcast group.
type Member interface {
	SessionID() string
	// Enqueue must not block; it reports false when the member's queue is full.
	Enqueue(frame []byte) bool
	// Drop is called once the hub removed the member for falling behind.
	Drop(reason string)
}

type publishOptions struct {
	exclude string
}

// PublishOption tunes a single Publish call.
type PublishOption func(*publishOptions)

// ExcludeSession skips the given session when delivering.
func ExcludeSession(sessionID string) PublishOption {
	return func(o *publishOptions) {
		o.exclude = sessionID
	}
}

type relayEnvelope struct {
	Source  string          `json:"source"`
	Channel string          `json:"channel"`
	Exclude string          `json:"exclude,omitempty"`
	Type    string          `json:"type"`
	Frame   json.RawMessage `json:"frame"`
}

// BroadcastHub groups live sessions by channel key and fans events out to them.
type BroadcastHub struct {
	mu     sync.Mutex
	groups map[string]*broadcastGroup
	relay  Relay
	nodeID string
	logger zerolog.Logger
}

type broadcastGroup struct {
	mu      sync.Mutex
	members map[string]Member
}

// NewBroadcastHub creates a hub. relay may be nil for single-node deployments.
func NewBroadcastHub(relay Relay, logger zerolog.Logger) *BroadcastHub {
	return &BroadcastHub{
		groups: make(map[string]*broadcastGroup),
		relay:  relay,
		nodeID: uuid.NewString(),
		logger: logger.With().Str("component", "broadcast_hub").Logger(),
	}
}

// NodeID identifies this process on the relay backbone.
func (h *BroadcastHub) NodeID() string {
	return h.nodeID
}

// Start subscribes to the relay. It returns once the subscription is live.
func (h *BroadcastHub) Start(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	if err := h.relay.Subscribe(ctx, h.handleRelayed); err != nil {
		return err
	}
	h.logger.Info().Str("relay", h.relay.Name()).Str("node_id", h.nodeID).Msg("broadcast relay subscribed")
	return nil
}

// Join registers member under key. Joining twice is a no-op.
func (h *BroadcastHub) Join(key string, member Member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[key]
	if !ok {
		group = &broadcastGroup{members: make(map[string]Member)}
		h.groups[key] = group
	}
	group.mu.Lock()
	group.members[member.SessionID()] = member
	group.mu.Unlock()

	h.logger.Debug().Str("channel", key).Str("session_id", member.SessionID()).Msg("member joined")
}

// Leave removes member from key. Leaving a group it is not part of is a no-op.
func (h *BroadcastHub) Leave(key string, member Member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[key]
	if !ok {
		return
	}
	group.mu.Lock()
	delete(group.members, member.SessionID())
	empty := len(group.members) == 0
	group.mu.Unlock()

	if empty {
		delete(h.groups, key)
	}
}

// Members reports how many members are registered under key.
func (h *BroadcastHub) Members(key string) int {
	h.mu.Lock()
	group, ok := h.groups[key]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	group.mu.Lock()
	defer group.mu.Unlock()
	return len(group.members)
}

// Publish delivers event to every member registered under key at call time and relays it to other nodes.
// Local delivery never blocks on a slow member; the returned error only reports relay failures.
func (h *BroadcastHub) Publish(ctx context.Context, key string, event dto.Event, opts ...PublishOption) error {
	options := publishOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	frame, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.deliver(key, frame, options.exclude)
	observability.EventsPublished().WithLabelValues(event.Type).Inc()

	if h.relay == nil {
		return nil
	}

	payload, err := json.Marshal(relayEnvelope{
		Source:  h.nodeID,
		Channel: key,
		Exclude: options.exclude,
		Type:    event.Type,
		Frame:   frame,
	})
	if err != nil {
		return err
	}
	return h.relay.Publish(ctx, payload)
}

func (h *BroadcastHub) deliver(key string, frame []byte, exclude string) {
	h.mu.Lock()
	group, ok := h.groups[key]
	h.mu.Unlock()
	if !ok {
		return
	}

	var dropped []Member
	group.mu.Lock()
	for id, member := range group.members {
		if id == exclude {
			continue
		}
		if !member.Enqueue(frame) {
			delete(group.members, id)
			dropped = append(dropped, member)
		}
	}
	group.mu.Unlock()

	for _, member := range dropped {
		h.logger.Warn().Str("channel", key).Str("session_id", member.SessionID()).Msg("dropping slow consumer")
		observability.SlowConsumerDrops().Inc()
		member.Drop("outbound queue full")
		h.Leave(key, member)
	}
}

func (h *BroadcastHub) handleRelayed(data []byte) {
	var envelope relayEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		h.logger.Warn().Err(err).Msg("invalid relayed event")
		return
	}
	if envelope.Source == h.nodeID || envelope.Channel == "" {
		return
	}

	observability.RelayReceived().WithLabelValues(h.relay.Name()).Inc()
	h.deliver(envelope.Channel, envelope.Frame, envelope.Exclude)
}
