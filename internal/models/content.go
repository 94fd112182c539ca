package models

import "time"

// ItemKind distinguishes the thread's submission from its comments.
type ItemKind string

const (
	ItemKindPost    ItemKind = "post"
	ItemKindComment ItemKind = "comment"
)

// EntityMention is one ticker linked to a content item by the entity linker.
// The engine persists whatever the linker returns without interpreting it.
type EntityMention struct {
	Symbol       string
	Confidence   float64
	MatchedTerms []string
}

// ContentItem is one persisted unit of content, a post or a comment.
// SourceItemID is unique across the content store; a duplicate insert is a
// non-fatal skip, never a run failure.
type ContentItem struct {
	SourceItemID string // Badger key
	ThreadID     string // parent thread's source ID
	Source       string
	Kind         ItemKind

	Title      string // posts only
	Author     string
	Body       string
	CreatedAt  time.Time
	Score      int
	ReplyCount int
	Permalink  string

	Mentions   []EntityMention
	IngestedAt time.Time
}

// Valid reports whether the item carries the minimum fields required for
// persistence. Malformed items are counted as failed and skipped.
func (c *ContentItem) Valid() bool {
	return c.SourceItemID != "" && c.ThreadID != "" && !c.CreatedAt.IsZero()
}
