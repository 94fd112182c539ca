// Package reddit adapts the platform API client library to the engine's
// SourceClient interface. The OAuth flow and HTTP transport belong to the
// library; this package only translates types and classifies failures.
package reddit

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/alextesy/stocktalk/internal/common"
	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
)

// listingPageSize is the maximum items the source serves per listing page.
const listingPageSize = 100

// Acquirer is the rate limiter hook the adapter calls before each listing
// page it fetches. Comment-tree calls are not acquired here; the extractor
// owns those acquires.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// Client implements interfaces.SourceClient on top of the Reddit API.
type Client struct {
	api     *reddit.Client
	limiter Acquirer
	logger  arbor.ILogger
}

// NewClient builds the platform client from credentials. A credential
// failure surfaces on the first API call as a fatal source error, which the
// scheduler records as that source's run failure.
func NewClient(cfg *common.RedditConfig, limiter Acquirer, logger arbor.ILogger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("reddit credentials are not configured")
	}

	credentials := reddit.Credentials{
		ID:       cfg.ClientID,
		Secret:   cfg.ClientSecret,
		Username: cfg.Username,
		Password: cfg.Password,
	}
	api, err := reddit.NewClient(credentials, reddit.WithUserAgent(cfg.UserAgent))
	if err != nil {
		return nil, fmt.Errorf("failed to create reddit client: %w", err)
	}

	return &Client{
		api:     api,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// RecentThreads lists the newest submissions, paginating until limit is
// reached or the listing ends.
func (c *Client) RecentThreads(ctx context.Context, source string, limit int) ([]*models.ThreadStub, error) {
	stubs := make([]*models.ThreadStub, 0, limit)
	after := ""

	for len(stubs) < limit {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		page := listingPageSize
		if remaining := limit - len(stubs); remaining < page {
			page = remaining
		}
		posts, resp, err := c.api.Subreddit.NewPosts(ctx, source, &reddit.ListOptions{
			Limit: page,
			After: after,
		})
		if err != nil {
			return nil, classify(err)
		}

		for _, p := range posts {
			stubs = append(stubs, stubFromPost(p))
		}
		if resp.After == "" || len(posts) == 0 {
			break
		}
		after = resp.After
	}
	return stubs, nil
}

// TopThreads lists the highest-engagement submissions from the window.
func (c *Client) TopThreads(ctx context.Context, source, window string, limit int) ([]*models.ThreadStub, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	posts, _, err := c.api.Subreddit.TopPosts(ctx, source, &reddit.ListPostOptions{
		ListOptions: reddit.ListOptions{Limit: limit},
		Time:        window,
	})
	if err != nil {
		return nil, classify(err)
	}

	stubs := make([]*models.ThreadStub, 0, len(posts))
	for _, p := range posts {
		stubs = append(stubs, stubFromPost(p))
	}
	return stubs, nil
}

// ThreadByID fetches one thread's current state for live-count refresh.
func (c *Client) ThreadByID(ctx context.Context, threadID string) (*models.ThreadStub, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	pc, _, err := c.api.Post.Get(ctx, threadID)
	if err != nil {
		return nil, classify(err)
	}
	return stubFromPost(pc.Post), nil
}

// CommentTree fetches the thread with its initially visible comments. The
// caller rate-limits this call and every Expand.
func (c *Client) CommentTree(ctx context.Context, threadID string) (interfaces.CommentTree, error) {
	pc, _, err := c.api.Post.Get(ctx, threadID)
	if err != nil {
		return nil, classify(err)
	}
	return &commentTree{client: c, pc: pc}, nil
}

// commentTree wraps the library's partially loaded tree.
type commentTree struct {
	client *Client
	pc     *reddit.PostAndComments
}

func (t *commentTree) HasMore() bool {
	return t.pc.HasMore()
}

func (t *commentTree) Expand(ctx context.Context) error {
	if _, err := t.client.api.Post.LoadMoreComments(ctx, t.pc); err != nil {
		return classify(err)
	}
	return nil
}

func (t *commentTree) Items() []*models.ContentItem {
	var items []*models.ContentItem
	source := strings.ToLower(t.pc.Post.SubredditName)
	flatten(t.pc.Comments, t.pc.Post.ID, source, &items)
	return items
}

// flatten walks the nested replies depth-first into a flat list.
func flatten(comments []*reddit.Comment, threadID, source string, out *[]*models.ContentItem) {
	for _, c := range comments {
		*out = append(*out, itemFromComment(c, threadID, source))
		if len(c.Replies.Comments) > 0 {
			flatten(c.Replies.Comments, threadID, source, out)
		}
	}
}

func stubFromPost(p *reddit.Post) *models.ThreadStub {
	stub := &models.ThreadStub{
		ID:          p.ID,
		Source:      strings.ToLower(p.SubredditName),
		Title:       p.Title,
		Author:      p.Author,
		Body:        p.Body,
		NumComments: p.NumberOfComments,
		Score:       p.Score,
		Permalink:   p.Permalink,
	}
	if p.Created != nil {
		stub.CreatedAt = p.Created.Time.UTC()
	}
	return stub
}

func itemFromComment(c *reddit.Comment, threadID, source string) *models.ContentItem {
	item := &models.ContentItem{
		SourceItemID: c.ID,
		ThreadID:     threadID,
		Source:       source,
		Kind:         models.ItemKindComment,
		Author:       c.Author,
		Body:         c.Body,
		Score:        c.Score,
		ReplyCount:   len(c.Replies.Comments),
		Permalink:    c.Permalink,
	}
	if c.Created != nil {
		item.CreatedAt = c.Created.Time.UTC()
	}
	return item
}
