// Package scraper contains the per-thread ingestion engine: the comment
// extractor, the incremental filter, and the thread scraper that drives one
// thread from discovery to committed progress.
package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
	"github.com/alextesy/stocktalk/internal/services/ratelimit"
)

// ExpandAll disables the comment cap for an extraction.
const ExpandAll = -1

// deletedSentinels are the body values the source substitutes for removed
// content. Items with these bodies are excluded from extraction results.
var deletedSentinels = map[string]struct{}{
	"[deleted]": {},
	"[removed]": {},
}

// ExpansionPolicy resolves how many comments an extraction may load. The
// policy is resolved once at configuration time; no per-call strategy
// selection happens inside the extractor.
type ExpansionPolicy struct {
	// LargeThreadThreshold is the reported comment count above which a
	// thread is considered huge and gets the conservative cap instead of
	// full expansion. Zero disables the cap.
	LargeThreadThreshold int
	// LargeThreadLimit is the conservative cap applied to huge threads,
	// bounding worst-case latency and request volume.
	LargeThreadLimit int
}

// Resolve returns the comment cap for a thread: the override verbatim when
// given, the conservative cap for huge threads, ExpandAll otherwise.
func (p ExpansionPolicy) Resolve(reportedComments int, override *int) int {
	if override != nil {
		return *override
	}
	if p.LargeThreadThreshold > 0 && reportedComments > p.LargeThreadThreshold {
		return p.LargeThreadLimit
	}
	return ExpandAll
}

// Extractor fetches and flattens a thread's comment tree. Every call against
// the source is preceded by a rate limiter acquire, and rate-limited
// failures retry the entire extraction since the tree may have changed
// between attempts.
type Extractor struct {
	client      interfaces.SourceClient
	limiter     *ratelimit.Limiter
	backoff     *ratelimit.BackoffPolicy
	policy      ExpansionPolicy
	maxAttempts int
	logger      arbor.ILogger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExtractor creates a comment extractor.
func NewExtractor(
	client interfaces.SourceClient,
	limiter *ratelimit.Limiter,
	backoff *ratelimit.BackoffPolicy,
	policy ExpansionPolicy,
	maxAttempts int,
	logger arbor.ILogger,
) *Extractor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Extractor{
		client:      client,
		limiter:     limiter,
		backoff:     backoff,
		policy:      policy,
		maxAttempts: maxAttempts,
		logger:      logger,
		sleep:       sleepFor,
	}
}

// Extract returns the flattened list of non-deleted comments for a thread,
// capped according to the expansion policy and the optional override.
//
// A retryable failure sleeps per the backoff policy and restarts the whole
// extraction, up to the attempt ceiling. A non-retryable failure or an
// exhausted ceiling returns an empty result with the error; the caller logs
// it and moves on, so one bad thread never aborts the run.
func (e *Extractor) Extract(ctx context.Context, stub *models.ThreadStub, override *int) ([]*models.ContentItem, error) {
	limit := e.policy.Resolve(stub.NumComments, override)
	if limit == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		items, err := e.extractOnce(ctx, stub.ID, limit)
		if err == nil {
			return filterDeleted(items), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		decision := e.backoff.Classify(err, attempt, e.maxAttempts)
		if !decision.Retry {
			e.logger.Warn().
				Str("thread_id", stub.ID).
				Int("attempts", attempt+1).
				Str("outcome", models.OutcomeOf(err).String()).
				Err(err).
				Msg("Extraction abandoned")
			return nil, lastErr
		}

		e.logger.Info().
			Str("thread_id", stub.ID).
			Int("attempt", attempt+1).
			Dur("wait", decision.Wait).
			Msg("Rate limited, retrying extraction after backoff")

		if err := e.sleep(ctx, decision.Wait); err != nil {
			return nil, err
		}
	}
}

// extractOnce performs one full tree fetch plus expansion pass.
func (e *Extractor) extractOnce(ctx context.Context, threadID string, limit int) ([]*models.ContentItem, error) {
	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	tree, err := e.client.CommentTree(ctx, threadID)
	if err != nil {
		return nil, err
	}

	for tree.HasMore() && (limit < 0 || len(tree.Items()) < limit) {
		if err := e.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		if err := tree.Expand(ctx); err != nil {
			return nil, err
		}
	}

	items := tree.Items()
	if limit >= 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func filterDeleted(items []*models.ContentItem) []*models.ContentItem {
	kept := make([]*models.ContentItem, 0, len(items))
	for _, item := range items {
		if _, gone := deletedSentinels[strings.TrimSpace(item.Body)]; gone {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}
