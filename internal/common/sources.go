package common

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceConfig defines one scraped source (a subreddit) and its limits.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`

	// DiscussionKeywords are matched case-insensitively as substrings
	// against thread titles to find recurring discussion threads.
	DiscussionKeywords []string `yaml:"discussion_keywords"`

	// DailyDiscussionMaxComments caps comment expansion on discussion
	// threads. Omitted or zero falls back to 2000.
	DailyDiscussionMaxComments int `yaml:"daily_discussion_max_comments"`

	// RegularPostMaxComments caps comment expansion on top posts. Zero
	// selects the post-only bulk fast path.
	RegularPostMaxComments int `yaml:"regular_post_max_comments"`

	// MaxTopPostsPerRun bounds the top-content phase. Omitted or zero
	// falls back to 25.
	MaxTopPostsPerRun int `yaml:"max_top_posts_per_run"`

	// TopWindow is the recency window for top-content discovery ("day",
	// "week", "month"). Omitted falls back to "day".
	TopWindow string `yaml:"top_window"`
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
	// Tickers is the known-symbol list consumed by the entity linker for
	// bare (non-cashtag) matches.
	Tickers []string `yaml:"tickers"`
}

// LoadSources reads the YAML sources file and normalizes defaults. It
// returns the source definitions and the known-ticker list.
func LoadSources(path string) ([]SourceConfig, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}
	if len(f.Sources) == 0 {
		return nil, nil, fmt.Errorf("sources file %s defines no sources", path)
	}

	for i := range f.Sources {
		s := &f.Sources[i]
		if s.Name == "" {
			return nil, nil, fmt.Errorf("sources file %s: source %d has no name", path, i)
		}
		s.Name = strings.TrimPrefix(strings.ToLower(s.Name), "r/")
		if s.DailyDiscussionMaxComments <= 0 {
			s.DailyDiscussionMaxComments = 2000
		}
		if s.MaxTopPostsPerRun <= 0 {
			s.MaxTopPostsPerRun = 25
		}
		if s.TopWindow == "" {
			s.TopWindow = "day"
		}
	}
	return f.Sources, f.Tickers, nil
}

// MatchesDiscussion reports whether a thread title matches any of the
// source's discussion keywords, case-insensitively.
func (s *SourceConfig) MatchesDiscussion(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range s.DiscussionKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
