package reconcile

import (
	"sort"
	"sync"

	"github.com/curalink/portal-core/internal/domain"
	"go.uber.org/zap"
)

// ConversationLog is the ordered, de-duplicated message list for the active
// conversation. A locally sent message is never inserted optimistically; the
// only mutating path is the confirmed one (history load or message:new), so
// there is no temporary-id reconciliation to do.
type ConversationLog struct {
	log *zap.SugaredLogger

	mu        sync.RWMutex
	patientID string
	messages  []domain.ChatMessage
	seen      map[string]struct{}
}

func NewConversationLog(patientID string, log *zap.SugaredLogger) *ConversationLog {
	return &ConversationLog{
		log:       log,
		patientID: patientID,
		seen:      make(map[string]struct{}),
	}
}

func (c *ConversationLog) PatientID() string {
	return c.patientID
}

// Replace loads the full history.
func (c *ConversationLog) Replace(messages []domain.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = make([]domain.ChatMessage, 0, len(messages))
	c.seen = make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if _, dup := c.seen[m.ID]; dup {
			continue
		}
		c.seen[m.ID] = struct{}{}
		c.messages = append(c.messages, m)
	}
	c.sortLocked()
}

// Append merges one inbound message:new. Messages for another patient's
// conversation are ignored, as are ids already present (a double-delivered
// broadcast, or the ack and the broadcast both carrying the message).
func (c *ConversationLog) Append(m domain.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.PatientID != "" && m.PatientID != c.patientID {
		return
	}
	if _, dup := c.seen[m.ID]; dup {
		return
	}
	c.seen[m.ID] = struct{}{}
	c.messages = append(c.messages, m)
	c.sortLocked()
}

// Clear empties the conversation unconditionally when the inbound
// messages:cleared is scoped to this patient.
func (c *ConversationLog) Clear(patientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if patientID != c.patientID {
		return
	}
	c.messages = nil
	c.seen = make(map[string]struct{})
}

// Messages returns a copy ordered by createdAt ascending, ties kept in
// arrival order.
func (c *ConversationLog) Messages() []domain.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *ConversationLog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// sortLocked keeps createdAt ascending; SliceStable preserves arrival order
// for equal timestamps.
func (c *ConversationLog) sortLocked() {
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].CreatedAt.Before(c.messages[j].CreatedAt)
	})
}
