// Package curation はホームコンテンツの掲載候補を外部フィードから生成する。
// 候補は下書きのHomeContentとして返すだけで、保存は行わない。
package curation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/pressdesk/internal/model"
)

// ErrInvalidFeedURL はフィードURLが事前検証で拒否されたことを表す。
var ErrInvalidFeedURL = errors.New("invalid feed url")

// excerptLength は候補の抜粋の最大文字数。
const excerptLength = 160

// URLValidator は外部URLの事前検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// TextProcessor は本文のサニタイズと抜粋生成を行う。
type TextProcessor interface {
	Sanitize(rawHTML string) string
	Excerpt(rawHTML string, maxRunes int) string
}

// Suggester はRSS/Atomフィードから掲載候補を生成する。
type Suggester struct {
	client    *http.Client
	validator URLValidator
	text      TextProcessor
	logger    *slog.Logger
	maxSize   int64
	maxItems  int
}

// NewSuggester はSuggesterの新しいインスタンスを生成する。
// clientにはSSRF対策済みのHTTPクライアントを渡すこと。
// maxItemsが0以下の場合は10件を上限とする。
func NewSuggester(client *http.Client, validator URLValidator, text TextProcessor, logger *slog.Logger, maxSize int64, maxItems int) *Suggester {
	if maxItems <= 0 {
		maxItems = 10
	}
	return &Suggester{
		client:    client,
		validator: validator,
		text:      text,
		logger:    logger,
		maxSize:   maxSize,
		maxItems:  maxItems,
	}
}

// Suggest はフィードを取得し、記事を下書きのHomeContent候補に変換する。
// feedURLがHTMLページの場合はheadのalternateリンクからフィードを検出して取得し直す。
func (s *Suggester) Suggest(ctx context.Context, feedURL, section string) ([]model.HomeContent, error) {
	start := time.Now()

	if err := s.validator.ValidateURL(feedURL); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFeedURL, err.Error())
	}

	body, contentType, err := s.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	resolvedURL := feedURL
	if !isFeedResponse(contentType, body) && isHTMLResponse(contentType) {
		link, ok := selectFeedLink(feedLinksFromHTML(body, feedURL), feedURL)
		if !ok {
			return nil, fmt.Errorf("ページからフィードを検出できませんでした: %s", feedURL)
		}
		if err := s.validator.ValidateURL(link.URL); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFeedURL, err.Error())
		}
		resolvedURL = link.URL
		if body, _, err = s.fetch(ctx, resolvedURL); err != nil {
			return nil, err
		}
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("フィードのパースに失敗しました",
			slog.String("feed_url", resolvedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	candidates := s.convertItems(parsed.Items, section)

	s.logger.Info("掲載候補を生成しました",
		slog.String("feed_url", resolvedURL),
		slog.String("feed_title", parsed.Title),
		slog.Int("items_total", len(parsed.Items)),
		slog.Int("candidates", len(candidates)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return candidates, nil
}

// fetch はURLを取得してボディとContent-Typeを返す。ボディはmaxSizeで打ち切る。
func (s *Suggester) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "Pressdesk/1.0 Curation")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.8, */*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("フィードの取得に失敗しました",
			slog.String("feed_url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("フィードがHTTPステータス %d を返しました", resp.StatusCode)
	}

	var r io.Reader = resp.Body
	if s.maxSize > 0 {
		r = io.LimitReader(resp.Body, s.maxSize)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// convertItems はgofeedの記事をHomeContent候補に変換する。
// タイトルのない記事は除外し、上限件数で打ち切る。
func (s *Suggester) convertItems(items []*gofeed.Item, section string) []model.HomeContent {
	candidates := make([]model.HomeContent, 0, min(len(items), s.maxItems))

	for _, item := range items {
		if len(candidates) >= s.maxItems {
			break
		}
		if item == nil || strings.TrimSpace(item.Title) == "" {
			continue
		}

		body := item.Content
		if body == "" {
			body = item.Description
		}
		body = s.text.Sanitize(body)

		link := item.Link
		if link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			link = item.GUID
		}

		hc := model.HomeContent{
			Base: model.Base{
				Title:  strings.TrimSpace(item.Title),
				Tags:   append([]string(nil), item.Categories...),
				Status: model.StatusDraft,
			},
			Body:    body,
			Excerpt: s.text.Excerpt(body, excerptLength),
			Section: section,
			LinkURL: link,
		}
		if name := authorName(item); name != "" {
			hc.Author = &model.AuthorRef{Name: name}
		}
		if item.Image != nil {
			hc.ImageURL = item.Image.URL
		}

		candidates = append(candidates, hc)
	}
	return candidates
}

func authorName(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	return ""
}
