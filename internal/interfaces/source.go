package interfaces

import (
	"context"

	"github.com/alextesy/stocktalk/internal/models"
)

// SourceClient is the platform API client the engine consumes. The engine
// never implements its own HTTP client or OAuth flow; adapters wrap the
// platform library and classify its failures into models.SourceError.
type SourceClient interface {
	// RecentThreads lists the newest submissions for a source, newest
	// first, up to limit.
	RecentThreads(ctx context.Context, source string, limit int) ([]*models.ThreadStub, error)

	// TopThreads lists the highest-engagement submissions from a recent
	// window ("day", "week", "month"), up to limit.
	TopThreads(ctx context.Context, source, window string, limit int) ([]*models.ThreadStub, error)

	// ThreadByID fetches a single thread's current state, used by status
	// mode to refresh live comment counts.
	ThreadByID(ctx context.Context, threadID string) (*models.ThreadStub, error)

	// CommentTree fetches the thread and its initially visible comments.
	// Further batches are loaded through the returned tree, one network
	// call per Expand.
	CommentTree(ctx context.Context, threadID string) (CommentTree, error)
}

// CommentTree is a partially loaded comment tree. The submission itself is
// carried by the ThreadStub that led here; the tree only serves comments.
// Every Expand call is one request against the source and must be preceded
// by a rate limiter acquire by the caller.
type CommentTree interface {
	// Items returns the flattened comments fetched so far.
	Items() []*models.ContentItem

	// HasMore reports whether unloaded comment batches remain.
	HasMore() bool

	// Expand loads one more batch of comments into the tree.
	Expand(ctx context.Context) error
}

// EntityLinker links ticker entities to a content item. Linking performs no
// network calls and may run in a bounded worker pool. The engine persists
// whatever the linker returns without interpreting it.
type EntityLinker interface {
	Link(item *models.ContentItem) []models.EntityMention
}
