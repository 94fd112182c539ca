package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
)

// fakeTree is a scripted comment tree: loaded items plus pending batches that
// Expand reveals one at a time.
type fakeTree struct {
	loaded  []*models.ContentItem
	pending [][]*models.ContentItem
	expands int
}

func (t *fakeTree) Items() []*models.ContentItem { return t.loaded }

func (t *fakeTree) HasMore() bool { return len(t.pending) > 0 }

func (t *fakeTree) Expand(context.Context) error {
	t.expands++
	t.loaded = append(t.loaded, t.pending[0]...)
	t.pending = t.pending[1:]
	return nil
}

// fakeClient scripts successive CommentTree calls. The last entry repeats
// once the script runs out.
type fakeClient struct {
	results []func() (interfaces.CommentTree, error)
	calls   int
}

func (c *fakeClient) CommentTree(context.Context, string) (interfaces.CommentTree, error) {
	i := c.calls
	c.calls++
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	return c.results[i]()
}

func (c *fakeClient) RecentThreads(context.Context, string, int) ([]*models.ThreadStub, error) {
	return nil, nil
}

func (c *fakeClient) TopThreads(context.Context, string, string, int) ([]*models.ThreadStub, error) {
	return nil, nil
}

func (c *fakeClient) ThreadByID(context.Context, string) (*models.ThreadStub, error) {
	return nil, nil
}

// memContent is an in-memory ContentStorage. failOnBatch makes the Nth
// InsertBatch call fail without persisting anything, modeling a rolled-back
// transaction.
type memContent struct {
	items       map[string]*models.ContentItem
	batchCalls  int
	failOnBatch int // 1-based, 0 = never
}

func newMemContent() *memContent {
	return &memContent{items: make(map[string]*models.ContentItem)}
}

func (m *memContent) Insert(item *models.ContentItem) error {
	if _, ok := m.items[item.SourceItemID]; ok {
		return interfaces.ErrDuplicate
	}
	m.items[item.SourceItemID] = item
	return nil
}

func (m *memContent) InsertBatch(items []*models.ContentItem) (int, []string, error) {
	m.batchCalls++
	if m.failOnBatch != 0 && m.batchCalls == m.failOnBatch {
		return 0, nil, fmt.Errorf("simulated store failure")
	}

	inserted := 0
	var skipped []string
	for _, item := range items {
		if _, ok := m.items[item.SourceItemID]; ok {
			skipped = append(skipped, item.SourceItemID)
			continue
		}
		m.items[item.SourceItemID] = item
		inserted++
	}
	return inserted, skipped, nil
}

func (m *memContent) ExistsByExternalID(id string) (bool, error) {
	_, ok := m.items[id]
	return ok, nil
}

func (m *memContent) BulkCheckExisting(ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

func (m *memContent) ExistingIDsForThread(threadID string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	for id, item := range m.items {
		if item.ThreadID == threadID {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

func (m *memContent) LastSeenTimestampForThread(threadID string) (*time.Time, error) {
	var last *time.Time
	for _, item := range m.items {
		if item.ThreadID != threadID {
			continue
		}
		if last == nil || item.CreatedAt.After(*last) {
			ts := item.CreatedAt
			last = &ts
		}
	}
	return last, nil
}

// memProgress is an in-memory ProgressStorage.
type memProgress struct {
	records map[string]*models.ThreadRecord
	runs    map[string]*models.SourceRunStatus
}

func newMemProgress() *memProgress {
	return &memProgress{
		records: make(map[string]*models.ThreadRecord),
		runs:    make(map[string]*models.SourceRunStatus),
	}
}

func (m *memProgress) GetOrCreate(threadID string, initial *models.ThreadRecord) (*models.ThreadRecord, error) {
	if rec, ok := m.records[threadID]; ok {
		return rec, nil
	}
	now := time.Now()
	created := *initial
	created.SourceThreadID = threadID
	created.CreatedAt = now
	created.UpdatedAt = now
	m.records[threadID] = &created
	return &created, nil
}

func (m *memProgress) Get(threadID string) (*models.ThreadRecord, error) {
	rec, ok := m.records[threadID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return rec, nil
}

func (m *memProgress) ListBySource(source string) ([]*models.ThreadRecord, error) {
	var recs []*models.ThreadRecord
	for _, rec := range m.records {
		if rec.SourceName == source {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (m *memProgress) UpdateProgress(threadID string, scrapedDelta int, complete bool) error {
	if scrapedDelta < 0 {
		return fmt.Errorf("scraped delta must be non-negative, got %d", scrapedDelta)
	}
	rec, err := m.Get(threadID)
	if err != nil {
		return err
	}
	now := time.Now()
	rec.ScrapedItems += scrapedDelta
	rec.IsComplete = complete
	rec.LastScrapedAt = &now
	rec.UpdatedAt = now
	return nil
}

func (m *memProgress) UpdateTotalItems(threadID string, total int) error {
	rec, err := m.Get(threadID)
	if err != nil {
		return err
	}
	rec.TotalItems = total
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *memProgress) GetRunStatus(source string) (*models.SourceRunStatus, error) {
	status, ok := m.runs[source]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return status, nil
}

func (m *memProgress) UpsertRunStatus(status *models.SourceRunStatus) error {
	m.runs[status.Source] = status
	return nil
}

// fakeLinker tags every item with one fixed mention.
type fakeLinker struct{}

func (fakeLinker) Link(*models.ContentItem) []models.EntityMention {
	return []models.EntityMention{{Symbol: "TSLA", Confidence: 0.95, MatchedTerms: []string{"$TSLA"}}}
}

var testBase = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func makeComment(id, threadID string, offset time.Duration) *models.ContentItem {
	return &models.ContentItem{
		SourceItemID: id,
		ThreadID:     threadID,
		Source:       "wallstreetbets",
		Kind:         models.ItemKindComment,
		Author:       "tester",
		Body:         "body of " + id,
		CreatedAt:    testBase.Add(offset),
	}
}

func makeComments(threadID string, n int) []*models.ContentItem {
	items := make([]*models.ContentItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, makeComment(fmt.Sprintf("%s-c%04d", threadID, i), threadID, time.Duration(i)*time.Second))
	}
	return items
}

func makeStub(id string, numComments int) *models.ThreadStub {
	return &models.ThreadStub{
		ID:          id,
		Source:      "wallstreetbets",
		Title:       "Daily Discussion Thread for June 02, 2025",
		Author:      "AutoModerator",
		Body:        "Talk about your trades here.",
		CreatedAt:   testBase,
		NumComments: numComments,
	}
}
