// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer は編集者が入力した本文HTMLを送信前にサニタイズする。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 記事本文として妥当なタグと属性のみを通過させる。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は本文HTMLのサニタイズとプレーンテキスト化を行う。
// ポリシーは生成時に1回だけ構築し、以降は読み取り専用として並行利用できる。
type ContentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, h2〜h4, ul, ol, li, blockquote, pre, code, strong, em, figure, figcaption, a, img
//   - script, iframe, style および全てのon*イベント属性は除去
//   - URLはhttpsの絶対URLのみ許可
//   - aタグには target="_blank" と rel="noopener noreferrer" を付与
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "h2", "h3", "h4",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
		"figure", "figcaption",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &ContentSanitizer{
		policy: p,
	}
}

// Sanitize は本文HTMLをサニタイズして安全なHTMLを返す。
// 空文字列の入力には空文字列を返す。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
