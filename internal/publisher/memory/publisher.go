// Package memory records published notices in process so callers can inspect
// the payloads a run produced.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Message is one recorded publish.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher keeps every publish in call order. Message ids are numbered per
// topic, like "replays/1".
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	perTopic map[string]int
	err      error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{perTopic: make(map[string]int)}
}

// FailWith makes every later Publish return err. Pass nil to recover.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Publish records payload under topic.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, p.err)
	}
	p.perTopic[topic]++
	id := fmt.Sprintf("%s/%d", topic, p.perTopic[topic])
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of every recorded publish.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.messages)
}

// Topic returns the payloads published to topic, oldest first.
func (p *Publisher) Topic(topic string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}
