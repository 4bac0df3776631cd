package conversation

import (
	"fmt"
	"strings"

	"github.com/xhad/driftrag/internal/models"
)

// ContextPayload is everything the answering model sees for one turn.
type ContextPayload struct {
	History      []models.ConversationTurn
	ContextBlock string
}

type ContextBuilder struct {
	history *History
}

func NewContextBuilder(maxTurns int) *ContextBuilder {
	return &ContextBuilder{history: NewHistory(maxTurns)}
}

func (b *ContextBuilder) AppendUserTurn(text string) {
	b.history.Append(models.ConversationTurn{Role: models.RoleUser, Content: text})
}

// AppendAssistantTurn records the parsed summary of a reply, never the raw reply.
func (b *ContextBuilder) AppendAssistantTurn(summary string) {
	b.history.Append(models.ConversationTurn{Role: models.RoleAssistant, Content: summary})
}

func (b *ContextBuilder) BuildContext(retrieved []models.RankedChunk) ContextPayload {
	return ContextPayload{
		History:      b.history.Turns(),
		ContextBlock: FormatContext(retrieved),
	}
}

// Preview builds the payload as if question had been appended, without
// appending it. The oldest turn drops out if history is full.
func (b *ContextBuilder) Preview(question string, retrieved []models.RankedChunk) ContextPayload {
	turns := append(b.history.Turns(), models.ConversationTurn{Role: models.RoleUser, Content: question})
	if over := len(turns) - b.history.Max(); over > 0 {
		turns = turns[over:]
	}
	return ContextPayload{History: turns, ContextBlock: FormatContext(retrieved)}
}

func (b *ContextBuilder) History() *History {
	return b.history
}

// FormatContext renders retrieved chunks as numbered citations:
//
//	[1] Pricing (https://example.com/pricing)
//	Pro plan costs 20 dollars
func FormatContext(retrieved []models.RankedChunk) string {
	blocks := make([]string, 0, len(retrieved))
	for i, r := range retrieved {
		header := fmt.Sprintf("[%d] %s", i+1, r.SourceID)
		if title := strings.TrimSpace(r.SourceTitle); title != "" {
			header = fmt.Sprintf("[%d] %s (%s)", i+1, title, r.SourceID)
		}
		blocks = append(blocks, header+"\n"+r.Text)
	}
	return strings.Join(blocks, "\n\n")
}
