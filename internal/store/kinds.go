package store

import (
	"log/slog"

	"github.com/hitoshi/pressdesk/internal/model"
	"github.com/hitoshi/pressdesk/internal/workflow"
)

// excerptLength は本文から自動生成する抜粋の最大文字数。
const excerptLength = 160

type (
	BlogStore        = Store[model.Blog, *model.Blog]
	ContentStore     = Store[model.Content, *model.Content]
	JobStore         = Store[model.Job, *model.Job]
	HomeContentStore = Store[model.HomeContent, *model.HomeContent]
)

// NewBlogStore はブログ記事のストアを生成する。
func NewBlogStore(api API, logger *slog.Logger, opts ...Option) *BlogStore {
	return New[model.Blog](Config[model.Blog]{
		Kind:       "blog",
		Endpoint:   "/blogs",
		EntityKey:  "blog",
		ListKey:    "blogs",
		Workflow:   workflow.Editorial,
		Searchable: true,
		Prepare: func(b *model.Blog, text TextProcessor) {
			b.Content = text.Sanitize(b.Content)
			if b.Excerpt == "" {
				b.Excerpt = text.Excerpt(b.Content, excerptLength)
			}
		},
	}, api, logger, opts...)
}

// NewContentStore は汎用コンテンツのストアを生成する。
func NewContentStore(api API, logger *slog.Logger, opts ...Option) *ContentStore {
	return New[model.Content](Config[model.Content]{
		Kind:       "content",
		Endpoint:   "/contents",
		EntityKey:  "content",
		ListKey:    "contents",
		Workflow:   workflow.Editorial,
		Searchable: true,
		Prepare: func(c *model.Content, text TextProcessor) {
			c.Body = text.Sanitize(c.Body)
			if c.Excerpt == "" {
				c.Excerpt = text.Excerpt(c.Body, excerptLength)
			}
		},
	}, api, logger, opts...)
}

// NewJobStore は求人情報のストアを生成する。
// 求人はサーバー側の検索のみを使用する。
func NewJobStore(api API, logger *slog.Logger, opts ...Option) *JobStore {
	return New[model.Job](Config[model.Job]{
		Kind:      "job",
		Endpoint:  "/jobs",
		EntityKey: "job",
		ListKey:   "jobs",
		Workflow:  workflow.Job,
		Prepare: func(j *model.Job, text TextProcessor) {
			j.Description = text.Sanitize(j.Description)
		},
	}, api, logger, opts...)
}

// NewHomeContentStore はホームコンテンツのストアを生成する。
func NewHomeContentStore(api API, logger *slog.Logger, opts ...Option) *HomeContentStore {
	return New[model.HomeContent](Config[model.HomeContent]{
		Kind:      "home_content",
		Endpoint:  "/home-contents",
		EntityKey: "homeContent",
		ListKey:   "homeContents",
		Workflow:  workflow.Editorial,
		Prepare: func(h *model.HomeContent, text TextProcessor) {
			h.Body = text.Sanitize(h.Body)
			if h.Excerpt == "" {
				h.Excerpt = text.Excerpt(h.Body, excerptLength)
			}
		},
	}, api, logger, opts...)
}
