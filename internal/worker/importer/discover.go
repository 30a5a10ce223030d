package importer

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLink はクラブのWebページのheadで宣言されたスケジュールフィード。
type feedLink struct {
	url  string
	atom bool
}

// mediaTypeOf はContent-Typeからcharset等を除いたメディアタイプを返す。
func mediaTypeOf(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mt)
}

// isHTMLPage はレスポンスがフィードではなくHTMLページかを判定する。
// text/htmlで返すフィード配信元があるため、本文がRSS/Atomならフィードとして扱う。
func isHTMLPage(contentType string, body []byte) bool {
	if !strings.Contains(mediaTypeOf(contentType), "html") {
		return false
	}
	return !looksLikeFeed(body)
}

// looksLikeFeed は本文の先頭4KBからRSS/Atomのルート要素を探す。
func looksLikeFeed(body []byte) bool {
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	prefix := strings.ToLower(string(head))
	switch {
	case strings.Contains(prefix, "<rss"), strings.Contains(prefix, "<rdf:rdf"):
		return true
	case strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom"):
		return true
	}
	return false
}

// discoverFeedURL はHTMLのheadから<link rel="alternate">のフィードを探し、
// 最も適した1件の絶対URLを返す。
// 優先順位: ページと同一ホスト > Atom > 出現順
func discoverFeedURL(page []byte, pageURL string) (string, bool) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}

	links := parseFeedLinks(page, base)
	if len(links) == 0 {
		return "", false
	}

	host := strings.ToLower(base.Hostname())
	best, bestScore := -1, -1
	for i, l := range links {
		score := 0
		if u, err := url.Parse(l.url); err == nil && strings.ToLower(u.Hostname()) == host {
			score += 100
		}
		if l.atom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best].url, true
}

// parseFeedLinks はheadの<link>要素からRSS/Atomフィードを抽出する。bodyに入った時点で打ち切る。
func parseFeedLinks(page []byte, base *url.URL) []feedLink {
	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(page))
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

			attrs := make(map[string]string, 4)
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				attrs[strings.ToLower(string(key))] = string(val)
			}
			if strings.ToLower(attrs["rel"]) != "alternate" || attrs["href"] == "" {
				continue
			}

			var atom bool
			switch strings.ToLower(attrs["type"]) {
			case "application/rss+xml":
			case "application/atom+xml":
				atom = true
			default:
				continue
			}

			ref, err := url.Parse(attrs["href"])
			if err != nil {
				continue
			}
			links = append(links, feedLink{url: base.ResolveReference(ref).String(), atom: atom})
		}
	}
}
