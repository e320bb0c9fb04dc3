package storage

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// conversation is the cached value; its own mutex guards the slice so the
// cache lock is never held while copying a long history
type conversation struct {
	mu       sync.Mutex
	messages []Message
}

// MemoryStorage keeps conversations in process memory. A conversation that
// has not been appended to for ttl is dropped; a negative ttl keeps it forever.
type MemoryStorage struct {
	conversations *cache.Cache
	systemPrompt  string
	create        sync.Mutex
}

func NewMemoryStorage(systemPrompt string, ttl, cleanupInterval time.Duration) *MemoryStorage {
	if ttl == 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryStorage{
		conversations: cache.New(ttl, cleanupInterval),
		systemPrompt:  systemPrompt,
	}
}

func (m *MemoryStorage) conversation(userId string) *conversation {
	if v, ok := m.conversations.Get(userId); ok {
		return v.(*conversation)
	}

	m.create.Lock()
	defer m.create.Unlock()
	if v, ok := m.conversations.Get(userId); ok {
		return v.(*conversation)
	}
	conv := &conversation{
		messages: []Message{{
			Role:      RoleSystem,
			Content:   m.systemPrompt,
			Timestamp: time.Now(),
		}},
	}
	m.conversations.Set(userId, conv, cache.DefaultExpiration)
	return conv
}

func (m *MemoryStorage) GetOrCreate(userId string) ([]Message, error) {
	conv := m.conversation(userId)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	out := make([]Message, len(conv.messages))
	copy(out, conv.messages)
	return out, nil
}

func (m *MemoryStorage) Append(userId string, message Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	conv := m.conversation(userId)
	conv.mu.Lock()
	conv.messages = append(conv.messages, message)
	conv.mu.Unlock()

	// refresh the idle expiration
	m.conversations.Set(userId, conv, cache.DefaultExpiration)
	return nil
}

// Len returns the number of messages including the system prompt, or zero
// for an unknown user
func (m *MemoryStorage) Len(userId string) int {
	v, ok := m.conversations.Get(userId)
	if !ok {
		return 0
	}
	conv := v.(*conversation)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return len(conv.messages)
}

// Count returns the number of live conversations
func (m *MemoryStorage) Count() int {
	return m.conversations.ItemCount()
}

func (m *MemoryStorage) Close() error {
	m.conversations.Flush()
	return nil
}
