// Package pubsub implements exact-channel and glob-pattern publish/
// subscribe fanout (spec.md §4.9). Subscribers are represented as an
// opaque Subscriber interface (a bounded outbound message queue) so this
// package has no dependency on the connection supervisor; internal/
// dispatch's Conn implements it directly.
package pubsub

import (
	"sync"

	"github.com/corekv/corekv/internal/glob"
)

// Message is one delivered publish, either a channel message or a
// pattern match (in which case Pattern is non-empty).
type Message struct {
	Pattern string
	Channel string
	Payload []byte
}

// Subscriber receives messages published to channels/patterns it is
// registered against. Deliver must not block indefinitely; a
// connection-level bounded queue is expected to drop or disconnect
// slow subscribers rather than stall the publisher.
type Subscriber interface {
	ID() uint64
	Deliver(Message)
}

// Registry tracks exact-channel and glob-pattern subscriptions and
// fans out Publish calls to matching subscribers, grounded on
// original_source/src/cmd/notify.rs's publish_event.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[uint64]Subscriber
	patterns map[string]map[uint64]Subscriber

	// Mirror, if non-nil, is called for every Publish in addition to the
	// in-process fanout (the notify-nats-url external-mirror expansion).
	Mirror func(channel string, payload []byte)
}

func NewRegistry() *Registry {
	return &Registry{
		channels: map[string]map[uint64]Subscriber{},
		patterns: map[string]map[uint64]Subscriber{},
	}
}

func (r *Registry) Subscribe(channel string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.channels[channel]
	if !ok {
		set = map[uint64]Subscriber{}
		r.channels[channel] = set
	}
	set[sub.ID()] = sub
}

func (r *Registry) Unsubscribe(channel string, subID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.channels[channel]; ok {
		delete(set, subID)
		if len(set) == 0 {
			delete(r.channels, channel)
		}
	}
}

func (r *Registry) PSubscribe(pattern string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.patterns[pattern]
	if !ok {
		set = map[uint64]Subscriber{}
		r.patterns[pattern] = set
	}
	set[sub.ID()] = sub
}

func (r *Registry) PUnsubscribe(pattern string, subID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.patterns[pattern]; ok {
		delete(set, subID)
		if len(set) == 0 {
			delete(r.patterns, pattern)
		}
	}
}

// UnsubscribeAll removes subID from every channel and pattern it is
// registered under, used on connection close.
func (r *Registry) UnsubscribeAll(subID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch, set := range r.channels {
		delete(set, subID)
		if len(set) == 0 {
			delete(r.channels, ch)
		}
	}
	for pat, set := range r.patterns {
		delete(set, subID)
		if len(set) == 0 {
			delete(r.patterns, pat)
		}
	}
}

// Publish delivers payload to every exact-channel subscriber of channel
// and every pattern subscriber whose pattern matches it, returning the
// number of subscribers reached (the PUBLISH command's integer reply).
func (r *Registry) Publish(channel string, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.Mirror != nil {
		r.Mirror(channel, payload)
	}

	n := 0
	for _, sub := range r.channels[channel] {
		sub.Deliver(Message{Channel: channel, Payload: payload})
		n++
	}
	for pattern, set := range r.patterns {
		if !glob.Match([]byte(pattern), []byte(channel)) {
			continue
		}
		for _, sub := range set {
			sub.Deliver(Message{Pattern: pattern, Channel: channel, Payload: payload})
			n++
		}
	}
	return n
}

// ChannelNames returns the channels with at least one subscriber,
// optionally filtered by glob pattern (PUBSUB CHANNELS [pattern]).
func (r *Registry) ChannelNames(pattern string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for ch := range r.channels {
		if pattern == "" || glob.Match([]byte(pattern), []byte(ch)) {
			out = append(out, ch)
		}
	}
	return out
}

// NumSubscribers returns the subscriber count for one channel
// (PUBSUB NUMSUB).
func (r *Registry) NumSubscribers(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// NumPatterns returns the total number of distinct active patterns
// (PUBSUB NUMPAT).
func (r *Registry) NumPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.patterns)
}
