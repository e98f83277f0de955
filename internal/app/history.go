package app

import (
	"sync"
	"time"

	"github.com/kenpath-ai/voicebridge/pkg/provider/llm"
)

// defaultHistoryLimit caps the number of conversation turns kept per call.
const defaultHistoryLimit = 20

// History holds one call's conversation as alternating user/assistant turns,
// oldest first, capped at a maximum turn count. Old turns are evicted on
// every append so long calls cannot grow memory without bound.
//
// All methods are safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	turns []Turn
	limit int
}

// Turn is a single conversation entry.
type Turn struct {
	// Role is "user" for caller speech and "assistant" for generated replies.
	Role string

	// Text is the turn content.
	Text string

	// Timestamp records when the turn was added.
	Timestamp time.Time
}

// NewHistory creates a history retaining at most limit turns. A limit of 0
// uses the default of 20.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &History{
		turns: make([]Turn, 0, limit),
		limit: limit,
	}
}

// AddUser appends a caller turn.
func (h *History) AddUser(text string) {
	h.add(Turn{Role: "user", Text: text, Timestamp: time.Now()})
}

// AddAssistant appends a generated reply turn.
func (h *History) AddAssistant(text string) {
	h.add(Turn{Role: "assistant", Text: text, Timestamp: time.Now()})
}

func (h *History) add(t Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, t)
	if len(h.turns) > h.limit {
		keep := h.turns[len(h.turns)-h.limit:]
		// Copy to a fresh slice so evicted turns can be garbage collected.
		fresh := make([]Turn, len(keep), h.limit)
		copy(fresh, keep)
		h.turns = fresh
	}
}

// Messages returns the history as generation-provider messages, oldest first.
func (h *History) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]llm.Message, len(h.turns))
	for i, t := range h.turns {
		out[i] = llm.Message{Role: t.Role, Content: t.Text}
	}
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
