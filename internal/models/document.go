package models

import (
	"regexp"
	"time"
)

type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
)

// ChangeRun is a contiguous block of added or removed words between two snapshots.
type ChangeRun struct {
	Type ChangeType `json:"type"`
	Text string     `json:"text"`
}

// Page is what a renderer extracted from a URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

type Chunk struct {
	SnapshotID  string    `json:"snapshot_id"`
	SourceID    string    `json:"source_id"`
	SourceTitle string    `json:"source_title"`
	Index       int       `json:"index"`
	Text        string    `json:"text"`
	Vector      []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

type RankedChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Snapshot is one captured version of a URL. Snapshots for the same URL form
// an append-only chain linked through PreviousID.
type Snapshot struct {
	ID                  string      `json:"id"`
	Collection          string      `json:"collection"`
	URL                 string      `json:"url"`
	Title               string      `json:"title"`
	OriginalText        string      `json:"original_text"`
	Chunks              []Chunk     `json:"chunks"`
	ChangesFromPrevious []ChangeRun `json:"changes_from_previous"`
	PreviousID          string      `json:"previous_id,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

var unsafeScopeChars = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// SanitizeScope turns a free-form name (a company, a project) into a
// collection scope safe for keys and table values.
func SanitizeScope(name string) string {
	return unsafeScopeChars.ReplaceAllString(name, "_")
}
