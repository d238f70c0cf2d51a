// services/messaging.go - Failure-isolated outbound push and timers
package services

import (
	"log"
	"sync"
	"time"
)

// Message is the wire envelope for every server push.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Sender is one connection's outbound half. Implementations must not
// block; the websocket client queues into a bounded channel.
type Sender interface {
	Send(msg Message) error
}

// Messenger wraps every outbound push in failure isolation: a recipient
// whose channel is already torn down is logged and skipped, never
// allowed to fault the orchestrator or starve the rest of a broadcast.
type Messenger struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

func NewMessenger() *Messenger {
	return &Messenger{senders: make(map[string]Sender)}
}

// Register attaches a live connection's sender.
func (m *Messenger) Register(connectionID string, sender Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.senders[connectionID] = sender
}

// Unregister detaches a connection; later pushes to it become no-ops.
func (m *Messenger) Unregister(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.senders, connectionID)
}

// ToConnection pushes one event to one connection, swallowing failures.
func (m *Messenger) ToConnection(connectionID, event string, payload interface{}) {
	m.mu.RLock()
	sender := m.senders[connectionID]
	m.mu.RUnlock()

	if sender == nil {
		return
	}
	m.deliver(connectionID, sender, Message{Type: event, Payload: payload})
}

// ToConnections fans an event out to a group. Each delivery is isolated;
// one dead recipient does not abort the batch.
func (m *Messenger) ToConnections(connectionIDs []string, event string, payload interface{}) {
	msg := Message{Type: event, Payload: payload}
	for _, id := range connectionIDs {
		m.mu.RLock()
		sender := m.senders[id]
		m.mu.RUnlock()
		if sender == nil {
			continue
		}
		m.deliver(id, sender, msg)
	}
}

func (m *Messenger) deliver(connectionID string, sender Sender, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ Dropped %s push to %s: panic: %v", msg.Type, connectionID, r)
		}
	}()
	if err := sender.Send(msg); err != nil {
		log.Printf("⚠️ Dropped %s push to %s: %v", msg.Type, connectionID, err)
	}
}

// RunAfter schedules a fire-and-forget operation. The callback is
// recover-guarded; cancellation is by re-checking room state inside the
// callback, not by stopping the timer.
func (m *Messenger) RunAfter(delay time.Duration, operation func()) {
	time.AfterFunc(delay, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("⚠️ Scheduled task panicked: %v", r)
			}
		}()
		operation()
	})
}
