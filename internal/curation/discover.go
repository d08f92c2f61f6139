package curation

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLink はHTMLのheadから検出したフィードへのリンク。
type feedLink struct {
	URL   string
	Atom  bool
	Title string
}

// isFeedResponse はContent-Typeとボディの先頭からRSS/Atomフィードかどうかを判定する。
// text/xml などの汎用XMLはルート要素で判定する。
func isFeedResponse(contentType string, body []byte) bool {
	switch mediaTypeOf(contentType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/xml", "application/xml", "":
		return hasFeedRoot(body)
	default:
		return false
	}
}

// isHTMLResponse はContent-TypeがHTMLかどうかを返す。
func isHTMLResponse(contentType string) bool {
	return strings.Contains(mediaTypeOf(contentType), "html")
}

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// hasFeedRoot は先頭4KBに <rss>、<rdf:RDF>、Atom名前空間の <feed> のいずれかがあるかを返す。
func hasFeedRoot(body []byte) bool {
	prefix := strings.ToLower(string(body[:min(len(body), 4096)]))
	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// feedLinksFromHTML はheadの <link rel="alternate"> からRSS/Atomのリンクを抜き出す。
// 相対URLはpageURLを基準に解決する。
func feedLinksFromHTML(body []byte, pageURL string) []feedLink {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(body))
	inHead := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links

		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return links
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "head":
				inHead = true
				continue
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, typ, href, title string
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					typ = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
			}
			if rel != "alternate" || href == "" {
				continue
			}
			if typ != "application/rss+xml" && typ != "application/atom+xml" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			links = append(links, feedLink{
				URL:   base.ResolveReference(ref).String(),
				Atom:  typ == "application/atom+xml",
				Title: title,
			})
		}
	}
}

// selectFeedLink は同一ホスト、Atom、出現順の優先度で1件を選ぶ。
func selectFeedLink(links []feedLink, pageURL string) (feedLink, bool) {
	if len(links) == 0 {
		return feedLink{}, false
	}

	pageHost := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.URL) == pageHost {
			score += 100
		}
		if l.Atom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best], true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
