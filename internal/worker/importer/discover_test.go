package importer

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
)

const clubPage = `<!DOCTYPE html>
<html>
<head>
  <title>Padel Club Central</title>
  <link rel="stylesheet" href="/style.css">
  <link rel="alternate" type="application/rss+xml" href="/schedule.xml">
</head>
<body>
  <link rel="alternate" type="application/atom+xml" href="/ignored.atom">
</body>
</html>`

func TestDiscoverFeedURL(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		pageURL string
		want    string
		wantOK  bool
	}{
		{
			name:    "相対URLを解決する",
			page:    clubPage,
			pageURL: "https://club.example.com/padel/",
			want:    "https://club.example.com/schedule.xml",
			wantOK:  true,
		},
		{
			name: "同一ホストを優先する",
			page: `<html><head>
<link rel="alternate" type="application/atom+xml" href="https://cdn.example.net/all.atom">
<link rel="alternate" type="application/rss+xml" href="/local.rss">
</head></html>`,
			pageURL: "https://club.example.com/",
			want:    "https://club.example.com/local.rss",
			wantOK:  true,
		},
		{
			name: "同一ホスト同士ならAtomを優先する",
			page: `<html><head>
<link rel="alternate" type="application/rss+xml" href="/a.rss">
<link rel="alternate" type="application/atom+xml" href="/b.atom">
</head></html>`,
			pageURL: "https://club.example.com/",
			want:    "https://club.example.com/b.atom",
			wantOK:  true,
		},
		{
			name:    "body内のlinkは無視する",
			page:    `<html><head><title>x</title></head><body><link rel="alternate" type="application/rss+xml" href="/x.rss"></body></html>`,
			pageURL: "https://club.example.com/",
			wantOK:  false,
		},
		{
			name:    "フィード以外のalternateは無視する",
			page:    `<html><head><link rel="alternate" type="text/html" hreflang="es" href="/es/"></head></html>`,
			pageURL: "https://club.example.com/",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := discoverFeedURL([]byte(tt.page), tt.pageURL)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsHTMLPage(t *testing.T) {
	tests := []struct {
		contentType string
		body        string
		want        bool
	}{
		{"text/html; charset=utf-8", clubPage, true},
		{"text/html", scheduleRSS, false},
		{"application/rss+xml", scheduleRSS, false},
		{"application/xml", "<html></html>", false},
		{"text/html", `<feed xmlns="http://www.w3.org/2005/Atom"></feed>`, false},
	}
	for _, tt := range tests {
		if got := isHTMLPage(tt.contentType, []byte(tt.body)); got != tt.want {
			t.Errorf("isHTMLPage(%q, %.20q) = %v, want %v", tt.contentType, tt.body, got, tt.want)
		}
	}
}

func TestFetch_DiscoversFeedFromClubPage(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(clubPage))
		case "/schedule.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			w.Write([]byte(scheduleRSS))
		default:
			http.NotFound(w, r)
		}
	})
	pageURL := fx.srv.URL + "/"

	created, err := fx.fetcher.Fetch(context.Background(), pageURL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}

	// 2回目は検出済みのフィードを直接取得する
	created, err = fx.fetcher.Fetch(context.Background(), pageURL)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if created != 0 {
		t.Errorf("second created = %d, want 0", created)
	}

	mu.Lock()
	got := strings.Join(paths, ",")
	mu.Unlock()
	if got != "/,/schedule.xml,/schedule.xml" {
		t.Errorf("request paths = %s", got)
	}

	list, _ := fx.matches.List(context.Background())
	for _, m := range list {
		if !strings.HasPrefix(m.ExternalRef, pageURL+"#") {
			t.Errorf("ExternalRef = %q, want prefix %q", m.ExternalRef, pageURL+"#")
		}
	}
}

func TestFetch_HTMLWithoutFeedLinkIsParseFailure(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Closed</title></head><body>No schedule</body></html>`))
	})

	if _, err := fx.fetcher.Fetch(context.Background(), fx.srv.URL); err == nil {
		t.Fatal("expected parse error")
	}
	state := fx.fetcher.states.snapshot(fx.srv.URL)
	if state.consecutiveErrors != 1 || state.resolvedURL != "" {
		t.Errorf("state = %+v", state)
	}
}
