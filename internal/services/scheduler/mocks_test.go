package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/common"
	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
	"github.com/alextesy/stocktalk/internal/services/linker"
	"github.com/alextesy/stocktalk/internal/services/ratelimit"
	"github.com/alextesy/stocktalk/internal/services/scraper"
)

var testBase = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

// scriptedClient serves canned listings and comment trees per source/thread.
type scriptedClient struct {
	recent    map[string][]*models.ThreadStub
	top       map[string][]*models.ThreadStub
	comments  map[string][]*models.ContentItem
	recentErr map[string]error
	byID      map[string]*models.ThreadStub
	byIDErr   map[string]error
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		recent:    make(map[string][]*models.ThreadStub),
		top:       make(map[string][]*models.ThreadStub),
		comments:  make(map[string][]*models.ContentItem),
		recentErr: make(map[string]error),
		byID:      make(map[string]*models.ThreadStub),
		byIDErr:   make(map[string]error),
	}
}

func (c *scriptedClient) RecentThreads(_ context.Context, source string, limit int) ([]*models.ThreadStub, error) {
	if err := c.recentErr[source]; err != nil {
		return nil, err
	}
	stubs := c.recent[source]
	if len(stubs) > limit {
		stubs = stubs[:limit]
	}
	return stubs, nil
}

func (c *scriptedClient) TopThreads(_ context.Context, source, _ string, limit int) ([]*models.ThreadStub, error) {
	stubs := c.top[source]
	if len(stubs) > limit {
		stubs = stubs[:limit]
	}
	return stubs, nil
}

func (c *scriptedClient) ThreadByID(_ context.Context, threadID string) (*models.ThreadStub, error) {
	if err := c.byIDErr[threadID]; err != nil {
		return nil, err
	}
	if stub, ok := c.byID[threadID]; ok {
		return stub, nil
	}
	return nil, &models.SourceError{Outcome: models.OutcomeNotFound}
}

func (c *scriptedClient) CommentTree(_ context.Context, threadID string) (interfaces.CommentTree, error) {
	// Fresh copy per call, as a live source would serve.
	items := c.comments[threadID]
	loaded := make([]*models.ContentItem, len(items))
	for i, item := range items {
		cp := *item
		loaded[i] = &cp
	}
	return &cannedTree{loaded: loaded}, nil
}

type cannedTree struct {
	loaded []*models.ContentItem
}

func (t *cannedTree) Items() []*models.ContentItem { return t.loaded }
func (t *cannedTree) HasMore() bool                { return false }
func (t *cannedTree) Expand(context.Context) error { return nil }

// memContent is an in-memory ContentStorage. beforeBatch, when set, runs at
// the top of every InsertBatch call, modeling writes that land between an
// existence pre-check and the insert.
type memContent struct {
	items       map[string]*models.ContentItem
	batchCalls  int
	beforeBatch func()
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
	if m.beforeBatch != nil {
		m.beforeBatch()
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

// harness wires a full scheduler stack over in-memory stores.
type harness struct {
	client   *scriptedClient
	content  *memContent
	progress *memProgress
	sources  []common.SourceConfig
	ingest   common.IngestConfig
	logger   arbor.ILogger
}

func newHarness(sources []common.SourceConfig) *harness {
	return &harness{
		client:   newScriptedClient(),
		content:  newMemContent(),
		progress: newMemProgress(),
		sources:  sources,
		ingest: common.IngestConfig{
			RequestsPerMinute:    100000,
			BatchSaveInterval:    200,
			MaxRetryAttempts:     3,
			LargeThreadThreshold: 3000,
			LargeThreadExpansion: 2000,
			DiscoveryLimit:       100,
			BackfillScanLimit:    1000,
			LinkerWorkers:        2,
		},
		logger: arbor.NewLogger(),
	}
}

func (h *harness) threadScraper() *scraper.ThreadScraper {
	extractor := scraper.NewExtractor(
		h.client,
		ratelimit.NewLimiter(h.ingest.RequestsPerMinute, h.logger),
		ratelimit.NewBackoffPolicy(),
		scraper.ExpansionPolicy{
			LargeThreadThreshold: h.ingest.LargeThreadThreshold,
			LargeThreadLimit:     h.ingest.LargeThreadExpansion,
		},
		h.ingest.MaxRetryAttempts,
		h.logger,
	)
	filter := scraper.NewIncrementalFilter(h.content, h.logger)
	entityLinker := linker.NewCashtagLinker([]string{"TSLA", "NVDA"}, h.logger)
	return scraper.NewThreadScraper(
		h.content, h.progress, extractor, filter, entityLinker,
		h.ingest.LinkerWorkers, h.ingest.BatchSaveInterval, h.logger,
	)
}

func (h *harness) incremental() *SourceScheduler {
	return NewSourceScheduler(
		h.client, h.content, h.progress, h.threadScraper(), nil,
		h.sources, h.ingest, h.logger,
	)
}

func (h *harness) backfill() *BackfillScheduler {
	return NewBackfillScheduler(
		h.client, h.progress, h.threadScraper(),
		h.sources, h.ingest, h.logger,
	)
}

func makeStub(id, source, title string, createdAt time.Time, numComments int) *models.ThreadStub {
	return &models.ThreadStub{
		ID:          id,
		Source:      source,
		Title:       title,
		Author:      "tester",
		Body:        "body of " + id,
		CreatedAt:   createdAt,
		NumComments: numComments,
	}
}

func makeComments(threadID string, n int) []*models.ContentItem {
	items := make([]*models.ContentItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, &models.ContentItem{
			SourceItemID: fmt.Sprintf("%s-c%03d", threadID, i),
			ThreadID:     threadID,
			Source:       "wallstreetbets",
			Kind:         models.ItemKindComment,
			Author:       "tester",
			Body:         fmt.Sprintf("comment %d on %s", i, threadID),
			CreatedAt:    testBase.Add(time.Duration(i) * time.Second),
		})
	}
	return items
}

func defaultSource(name string) common.SourceConfig {
	return common.SourceConfig{
		Name:                       name,
		Enabled:                    true,
		DiscussionKeywords:         []string{"daily discussion", "weekend discussion"},
		DailyDiscussionMaxComments: 2000,
		RegularPostMaxComments:     0,
		MaxTopPostsPerRun:          25,
		TopWindow:                  "day",
	}
}
