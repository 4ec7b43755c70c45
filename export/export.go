// Package export ships monitoring records to a message broker
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ridge/smcmon/wire"
	"golang.org/x/exp/maps"
)

// Message is a record ready to be written to a topic
type Message struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

// Sink receives batches of messages
type Sink interface {
	// Write stores the messages in order. Empty batches are ignored.
	Write(ctx context.Context, messages []Message) error

	// Close flushes and releases the sink
	Close() error
}

// Records converts a batch of records into messages. The key of a message is
// the value of keyField in the record, or the position of the record in the
// batch when the field is absent or keyField is empty. The source, e.g. the
// monitor definition, is passed in the "source" header along with the
// export time.
func Records(source, keyField string, records []wire.Record, now time.Time) ([]Message, error) {
	messages := make([]Message, 0, len(records))
	for i, record := range records {
		value, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
		key, ok := record.Lookup(keyField)
		if keyField == "" || !ok {
			key = strconv.Itoa(i)
		}
		messages = append(messages, Message{
			Key:   key,
			Value: value,
			Headers: map[string]string{
				"source":      source,
				"exported_at": now.UTC().Format(time.RFC3339Nano),
			},
		})
	}
	return messages, nil
}

// Memory keeps the written messages in memory
type Memory struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

// NewMemory creates an empty in-memory sink
func NewMemory() *Memory {
	return &Memory{}
}

// Write implements Sink
func (m *Memory) Write(ctx context.Context, messages []Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("write to closed sink")
	}
	for _, msg := range messages {
		msg.Headers = maps.Clone(msg.Headers)
		m.messages = append(m.messages, msg)
	}
	return nil
}

// Close implements Sink
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Messages returns the written messages in order
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Keys returns the keys of the written messages, sorted
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		keys = append(keys, msg.Key)
	}
	sort.Strings(keys)
	return keys
}
