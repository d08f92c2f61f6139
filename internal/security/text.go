package security

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// blockTags は前後に区切りの空白を入れるブロック要素。
var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "figcaption": true, "tr": true,
}

// skipTags は中身をテキストとして扱わない要素。
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
}

// PlainText はHTMLからテキストノードだけを取り出し、連続する空白を1つにまとめる。
// 文字参照はデコードされる。
func (s *ContentSanitizer) PlainText(rawHTML string) string {
	return PlainText(rawHTML)
}

// Excerpt は本文HTMLのプレーンテキストから最大maxRunes文字の抜粋を生成する。
// 切り詰めた場合は末尾に "…" を付与する。
func (s *ContentSanitizer) Excerpt(rawHTML string, maxRunes int) string {
	return Excerpt(rawHTML, maxRunes)
}

// PlainText はHTMLからテキストノードだけを取り出す。
func PlainText(rawHTML string) string {
	if !strings.ContainsAny(rawHTML, "<&") {
		return strings.Join(strings.Fields(rawHTML), " ")
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			name := string(tn)
			if skipTags[name] && tt == html.StartTagToken {
				skipDepth++
			}
			if blockTags[name] {
				b.WriteByte(' ')
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			name := string(tn)
			if skipTags[name] && skipDepth > 0 {
				skipDepth--
			}
			if blockTags[name] {
				b.WriteByte(' ')
			}

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

// Excerpt はプレーンテキストの抜粋を生成する。maxRunesが0以下の場合は切り詰めない。
func Excerpt(rawHTML string, maxRunes int) string {
	text := PlainText(rawHTML)
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	cut := strings.TrimSpace(string(runes[:maxRunes]))
	// 単語の途中で切れる場合は直前の空白まで戻す
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
