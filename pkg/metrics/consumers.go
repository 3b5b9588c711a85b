package metrics

import (
	"strings"
	"sync"
)

const (
	maxConsumerIdentifierLength = 128
	maxConsumerNameLength       = 64
	maxConsumerGroupLength      = 64
)

// Consumer is an identified API caller, optionally carrying display
// metadata for the hub.
type Consumer struct {
	Identifier string
	Name       string
	Group      string
}

// NewConsumer builds a consumer from an identifier, trimming and
// enforcing length limits. Returns a zero consumer if the identifier is
// empty after trimming.
func NewConsumer(identifier string) Consumer {
	identifier = clampString(identifier, maxConsumerIdentifierLength)
	return Consumer{Identifier: identifier}
}

// WithName returns a copy with the display name set.
func (c Consumer) WithName(name string) Consumer {
	c.Name = clampString(name, maxConsumerNameLength)
	return c
}

// WithGroup returns a copy with the group set.
func (c Consumer) WithGroup(group string) Consumer {
	c.Group = clampString(group, maxConsumerGroupLength)
	return c
}

// ConsumersItem is one consumer update as reported to the hub.
type ConsumersItem struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	Group      string `json:"group,omitempty"`
}

// ConsumerRegistry maps consumer identifiers to their last-seen metadata.
// Unlike the counter tables, registry state persists across snapshots;
// only the set of consumers updated since the last sync is drained.
type ConsumerRegistry struct {
	mu        sync.Mutex
	consumers map[string]Consumer
	updated   map[string]struct{}
}

func NewConsumerRegistry() *ConsumerRegistry {
	return &ConsumerRegistry{
		consumers: make(map[string]Consumer),
		updated:   make(map[string]struct{}),
	}
}

// AddOrUpdate registers the consumer or refreshes its metadata. Consumers
// without a name or group are not registered; they are still usable as a
// counter dimension.
func (r *ConsumerRegistry) AddOrUpdate(consumer Consumer) {
	if consumer.Identifier == "" || (consumer.Name == "" && consumer.Group == "") {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.consumers[consumer.Identifier]
	if !ok {
		r.consumers[consumer.Identifier] = consumer
		r.updated[consumer.Identifier] = struct{}{}
		return
	}
	changed := false
	if consumer.Name != "" && consumer.Name != existing.Name {
		existing.Name = consumer.Name
		changed = true
	}
	if consumer.Group != "" && consumer.Group != existing.Group {
		existing.Group = consumer.Group
		changed = true
	}
	if changed {
		r.consumers[consumer.Identifier] = existing
		r.updated[consumer.Identifier] = struct{}{}
	}
}

// GetAndResetUpdated drains the consumers updated since the last call.
// Registry state is retained.
func (r *ConsumerRegistry) GetAndResetUpdated() []ConsumersItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]ConsumersItem, 0, len(r.updated))
	for identifier := range r.updated {
		consumer, ok := r.consumers[identifier]
		if !ok {
			continue
		}
		items = append(items, ConsumersItem{
			Identifier: consumer.Identifier,
			Name:       consumer.Name,
			Group:      consumer.Group,
		})
	}
	r.updated = make(map[string]struct{})
	return items
}

func clampString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
