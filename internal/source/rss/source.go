// Package rss supplies an optional topical hook for post generation from
// per-category industry feeds. Feed failures are soft: generation simply
// proceeds without a hook.
package rss

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/profile-agent/internal/config"
	"github.com/profile-agent/pkg/logger"
	"github.com/profile-agent/pkg/ratelimit"
)

// Headlines older than this are not worth posting about.
const maxItemAge = 7 * 24 * time.Hour

// Source fetches industry headlines by business category.
type Source struct {
	feeds       map[string]string // category -> feed URL
	parser      *gofeed.Parser
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// New creates a headline source from config.
func New(cfg config.RSSConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	return &Source{
		feeds:       cfg.Feeds,
		parser:      gofeed.NewParser(),
		rateLimiter: limiter,
		log:         log.WithComponent("rss"),
	}
}

// Hook returns a fresh headline for the category, or "" when the
// category has no feed or nothing recent enough.
func (s *Source) Hook(ctx context.Context, category string) string {
	feedURL, ok := s.feeds[strings.ToLower(category)]
	if !ok {
		return ""
	}

	if err := s.rateLimiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
		return ""
	}

	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("category", category).Msg("Feed fetch failed")
		return ""
	}

	for _, item := range feed.Items {
		if item.PublishedParsed != nil && time.Since(*item.PublishedParsed) > maxItemAge {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title != "" {
			return title
		}
	}
	return ""
}
