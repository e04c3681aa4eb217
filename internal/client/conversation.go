package client

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"social-chat/internal/media"
	"social-chat/internal/service"
)

// Entry is one rendered line of a conversation. Pending entries have a
// TempID and no server id yet.
type Entry struct {
	TempID  string
	Pending bool
	Text    string
	Preview *media.Preview
	Message service.MessageView
}

// Conversation merges server pages with optimistic local sends.
type Conversation struct {
	ChatID int

	mu        sync.Mutex
	confirmed map[int]service.MessageView
	pending   []Entry
	now       func() time.Time
}

func NewConversation(chatID int) *Conversation {
	return &Conversation{ChatID: chatID, confirmed: map[int]service.MessageView{}, now: time.Now}
}

// AddPending records a local send before the server has answered.
func (c *Conversation) AddPending(text string, preview *media.Preview) Entry {
	e := Entry{TempID: uuid.NewString(), Pending: true, Text: text, Preview: preview}
	e.Message.CreatedAt = c.now()
	c.mu.Lock()
	c.pending = append(c.pending, e)
	c.mu.Unlock()
	return e
}

// Confirm replaces the pending entry with the stored message.
func (c *Conversation) Confirm(tempID string, msg service.MessageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removePending(tempID)
	c.confirmed[msg.ID] = msg
}

// Fail drops a pending entry whose send was rejected.
func (c *Conversation) Fail(tempID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removePending(tempID)
}

// ApplyPage merges fetched messages; later fetches overwrite read state.
func (c *Conversation) ApplyPage(msgs []service.MessageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.confirmed[m.ID] = m
	}
}

// Entries returns confirmed messages in seq order followed by pending sends.
func (c *Conversation) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]service.MessageView, 0, len(c.confirmed))
	for _, m := range c.confirmed {
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Seq != msgs[j].Seq {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].ID < msgs[j].ID
	})

	out := make([]Entry, 0, len(msgs)+len(c.pending))
	for _, m := range msgs {
		out = append(out, Entry{Text: m.Text, Message: m})
	}
	return append(out, c.pending...)
}

func (c *Conversation) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conversation) removePending(tempID string) bool {
	for i, e := range c.pending {
		if e.TempID == tempID {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}
