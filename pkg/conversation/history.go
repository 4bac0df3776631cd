package conversation

import (
	"sync"

	"github.com/xhad/driftrag/internal/models"
)

// History is a fixed-capacity FIFO of conversation turns. Appending past
// capacity evicts the oldest turns.
type History struct {
	mu    sync.Mutex
	max   int
	turns []models.ConversationTurn
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 10
	}
	return &History{max: max}
}

func (h *History) Append(turns ...models.ConversationTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turns...)
	if over := len(h.turns) - h.max; over > 0 {
		h.turns = append([]models.ConversationTurn(nil), h.turns[over:]...)
	}
}

// Turns returns a copy of the stored turns, oldest first.
func (h *History) Turns() []models.ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.ConversationTurn{}, h.turns...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func (h *History) Max() int {
	return h.max
}
