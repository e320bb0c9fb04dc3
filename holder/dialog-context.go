package holder

import (
	"log/slog"
	"sync"

	"ChatBridge/lib/sl"
	"ChatBridge/storage"
)

// Message is an alias for storage.Message
type Message = storage.Message

type userLock struct {
	mu   sync.Mutex
	refs int
}

// ContextManager is the only writer of conversation histories. Lock
// serialises requests of one user unless the manager is lock-free.
type ContextManager struct {
	storage  storage.ConversationStore
	log      *slog.Logger
	lockFree bool

	mu    sync.Mutex
	locks map[string]*userLock
}

func NewContextManager(store storage.ConversationStore, lockFree bool, log *slog.Logger) *ContextManager {
	return &ContextManager{
		storage:  store,
		log:      log.With(sl.Module("context")),
		lockFree: lockFree,
		locks:    make(map[string]*userLock),
	}
}

// Lock blocks until no other request of the same user holds the guard and
// returns the function releasing it
func (cm *ContextManager) Lock(userId string) (unlock func()) {
	if cm.lockFree {
		return func() {}
	}

	cm.mu.Lock()
	l, ok := cm.locks[userId]
	if !ok {
		l = &userLock{}
		cm.locks[userId] = l
	}
	l.refs++
	cm.mu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			cm.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(cm.locks, userId)
			}
			cm.mu.Unlock()
		})
	}
}

// History returns a copy of the user's conversation, creating it if needed
func (cm *ContextManager) History(userId string) ([]Message, error) {
	return cm.storage.GetOrCreate(userId)
}

func (cm *ContextManager) AppendUser(userId, content string) error {
	return cm.append(userId, Message{Role: storage.RoleUser, Content: content})
}

func (cm *ContextManager) AppendAssistant(userId, content string) error {
	return cm.append(userId, Message{Role: storage.RoleAssistant, Content: content})
}

func (cm *ContextManager) append(userId string, msg Message) error {
	if err := cm.storage.Append(userId, msg); err != nil {
		cm.log.With(
			sl.User(userId),
			slog.String("role", msg.Role),
		).Error("updating user context", sl.Err(err))
		return err
	}
	return nil
}

func (cm *ContextManager) Len(userId string) int {
	return cm.storage.Len(userId)
}

func (cm *ContextManager) Close() error {
	return cm.storage.Close()
}
