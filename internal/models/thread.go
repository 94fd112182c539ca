package models

import "time"

// ThreadType classifies a thread at creation time. It is decided once, when
// the thread record is first created, and never changes afterwards.
type ThreadType string

const (
	ThreadTypeDaily   ThreadType = "daily"
	ThreadTypeWeekend ThreadType = "weekend"
	ThreadTypeTopPost ThreadType = "top_post"
)

// ThreadRecord tracks per-thread scraping progress across runs.
//
// ScrapedItems is monotonically non-decreasing: every successful batch commit
// adds its delta, and a rolled-back batch never subtracts. IsComplete is set
// only after a run observes zero new items to persist, never just because
// extraction returned results.
type ThreadRecord struct {
	// SourceThreadID is the thread's ID on the source platform, unique
	// across the progress store. Used as the Badger key.
	SourceThreadID string
	SourceName     string
	ThreadType     ThreadType
	Title          string

	TotalItems    int // latest known comment count reported by the source
	ScrapedItems  int // count persisted locally
	IsComplete    bool
	LastScrapedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ThreadStub is a discovered thread as reported by the source platform,
// before any progress record exists for it. The schedulers discover stubs
// and hand them to the thread scraper.
type ThreadStub struct {
	ID          string
	Source      string
	Title       string
	Author      string
	Body        string
	CreatedAt   time.Time
	NumComments int
	Score       int
	Permalink   string
}

// ContentItem converts the stub into the persistable post item.
func (t *ThreadStub) ContentItem() *ContentItem {
	return &ContentItem{
		SourceItemID: t.ID,
		ThreadID:     t.ID,
		Source:       t.Source,
		Kind:         ItemKindPost,
		Title:        t.Title,
		Author:       t.Author,
		Body:         t.Body,
		CreatedAt:    t.CreatedAt,
		Score:        t.Score,
		ReplyCount:   t.NumComments,
		Permalink:    t.Permalink,
	}
}
