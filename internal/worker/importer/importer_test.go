package importer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/chatpadel/internal/membership"
	"github.com/hitoshi/chatpadel/internal/model"
	"github.com/hitoshi/chatpadel/internal/repository"
	"github.com/hitoshi/chatpadel/internal/security"
)

// --- モック定義 ---

// fakeGuard はhttptestサーバーへの接続を許可するOutboundGuard。
type fakeGuard struct {
	client      *http.Client
	validateErr error
}

func (g *fakeGuard) ValidateURL(string) error { return g.validateErr }

func (g *fakeGuard) NewSafeClient(time.Duration) *http.Client { return g.client }

type recordingMetrics struct {
	mu       sync.Mutex
	fetches  []bool
	imported int
}

func (m *recordingMetrics) RecordJoin(string)                 {}
func (m *recordingMetrics) RecordNotification(string, string) {}
func (m *recordingMetrics) RecordNotificationDropped()        {}
func (m *recordingMetrics) RecordAdvice(string, bool)         {}
func (m *recordingMetrics) RecordHTTPStatus(int)              {}

func (m *recordingMetrics) RecordImportFetch(success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, success)
}

func (m *recordingMetrics) RecordMatchesImported(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imported += count
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

const scheduleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Padel Club Central</title>
  <link>https://club.example.com</link>
  <item>
    <title>Padel Club Central &lt;b&gt;Court 2&lt;/b&gt;</title>
    <guid>session-100</guid>
    <category>Social</category>
    <category>Advanced</category>
    <pubDate>Sat, 17 Oct 2026 18:30:00 GMT</pubDate>
  </item>
  <item>
    <title>Main Arena</title>
    <link>https://club.example.com/sessions/101</link>
    <pubDate>Sun, 18 Oct 2026 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>No date session</title>
    <guid>session-102</guid>
  </item>
</channel>
</rss>`

type fixture struct {
	fetcher *Fetcher
	matches *repository.MemoryMatchRepo
	metrics *recordingMetrics
	srv     *httptest.Server
	hits    *atomic.Int32
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	matches := repository.NewMemoryMatchRepo()
	coord := membership.NewCoordinator(matches, logger)
	mc := &recordingMetrics{}

	f := NewFetcher(coord, &fakeGuard{client: srv.Client()}, security.NewTextSanitizer(), mc, logger, time.Second, 1<<20)
	return &fixture{fetcher: f, matches: matches, metrics: mc, srv: srv, hits: &hits}
}

// --- テスト ---

func TestFetch_ProvisionsMatchesFromFeed(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(scheduleRSS))
	})

	created, err := fx.fetcher.Fetch(context.Background(), fx.srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}

	list, _ := fx.matches.List(context.Background())
	if len(list) != 2 {
		t.Fatalf("matches = %d, want 2", len(list))
	}
	first := list[0]
	if first.Location != "Padel Club Central Court 2" {
		t.Errorf("Location = %q", first.Location)
	}
	if first.Level != model.SkillLevelAdvanced {
		t.Errorf("Level = %q, want advanced", first.Level)
	}
	if first.Date != "Sat, Oct 17" || first.Time != "18:30" {
		t.Errorf("Date/Time = %q %q", first.Date, first.Time)
	}
	if first.CurrentPlayers != 0 || first.MaxPlayers != model.DefaultMaxPlayers {
		t.Errorf("capacity = %d/%d", first.CurrentPlayers, first.MaxPlayers)
	}
	if first.ExternalRef != fx.srv.URL+"#session-100" {
		t.Errorf("ExternalRef = %q", first.ExternalRef)
	}
	if list[1].Level != model.SkillLevelIntermediate {
		t.Errorf("default level = %q, want intermediate", list[1].Level)
	}
	if fx.metrics.imported != 2 || len(fx.metrics.fetches) != 1 || !fx.metrics.fetches[0] {
		t.Errorf("metrics = %+v", fx.metrics)
	}
}

func TestFetch_IsIdempotent(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(scheduleRSS))
	})

	for i := 0; i < 2; i++ {
		if _, err := fx.fetcher.Fetch(context.Background(), fx.srv.URL); err != nil {
			t.Fatalf("Fetch() #%d error = %v", i, err)
		}
	}

	list, _ := fx.matches.List(context.Background())
	if len(list) != 2 {
		t.Errorf("matches = %d, want 2 after re-import", len(list))
	}
}

func TestFetch_ConditionalGET(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(scheduleRSS))
	})

	if _, err := fx.fetcher.Fetch(context.Background(), fx.srv.URL); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	created, err := fx.fetcher.Fetch(context.Background(), fx.srv.URL)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0 on 304", created)
	}
}

func TestFetch_StatusHandling(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantStopped bool
		wantDue     bool
	}{
		{"404で停止", http.StatusNotFound, true, false},
		{"403で停止", http.StatusForbidden, true, false},
		{"503でバックオフ", http.StatusServiceUnavailable, false, false},
		{"429でバックオフ", http.StatusTooManyRequests, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			if _, err := fx.fetcher.Fetch(context.Background(), fx.srv.URL); err == nil {
				t.Fatal("Fetch() should return error")
			}
			state := fx.fetcher.states.snapshot(fx.srv.URL)
			if state.stopped != tt.wantStopped {
				t.Errorf("stopped = %v, want %v", state.stopped, tt.wantStopped)
			}
			if got := fx.fetcher.Due(fx.srv.URL); got != tt.wantDue {
				t.Errorf("Due() = %v, want %v", got, tt.wantDue)
			}
			if len(fx.metrics.fetches) != 1 || fx.metrics.fetches[0] {
				t.Errorf("fetch metric = %v, want [false]", fx.metrics.fetches)
			}
		})
	}
}

func TestFetch_ParseFailureStopsAfterThreshold(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a feed"))
	})

	for i := 0; i < parseFailureThreshold; i++ {
		if _, err := fx.fetcher.Fetch(context.Background(), fx.srv.URL); err == nil {
			t.Fatalf("Fetch() #%d should fail", i)
		}
	}
	if fx.fetcher.Due(fx.srv.URL) {
		t.Error("feed should be stopped after repeated parse failures")
	}
}

func TestFetch_SSRFRejected(t *testing.T) {
	fx := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	fx.fetcher.guard = &fakeGuard{validateErr: errors.New("private address")}

	if _, err := fx.fetcher.Fetch(context.Background(), "http://169.254.169.254/feed"); err == nil {
		t.Fatal("Fetch() should fail SSRF validation")
	}
	if fx.hits.Load() != 0 {
		t.Error("no request should be sent")
	}
	if fx.fetcher.Due("http://169.254.169.254/feed") {
		t.Error("rejected feed should be stopped")
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 30 * time.Minute},
		{1, time.Hour},
		{3, 4 * time.Hour},
		{10, 12 * time.Hour},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.errors); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := map[int]FetchResult{
		200: FetchResultOK,
		304: FetchResultNotModified,
		410: FetchResultStop,
		401: FetchResultStop,
		500: FetchResultBackoff,
		302: FetchResultUnknown,
	}
	for code, want := range tests {
		if got := ClassifyHTTPStatus(code); got != want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestConvertItem_SkipsIncompleteEntries(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 5, 0, 0, time.UTC)
	tests := []struct {
		name string
		item *gofeed.Item
		ok   bool
	}{
		{"nil", nil, false},
		{"タイトルなし", &gofeed.Item{GUID: "a", PublishedParsed: &now}, false},
		{"マークアップのみのタイトル", &gofeed.Item{Title: "<script>x</script>", GUID: "a", PublishedParsed: &now}, false},
		{"参照キーなし", &gofeed.Item{Title: "Court", PublishedParsed: &now}, false},
		{"日時なし", &gofeed.Item{Title: "Court", GUID: "a"}, false},
		{"更新日時で代替", &gofeed.Item{Title: "Court", GUID: "a", UpdatedParsed: &now}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := convertItem("https://club.example.com/feed", tt.item, security.NewTextSanitizer(), time.UTC)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (m.Time != "09:05" || !strings.HasSuffix(m.ExternalRef, "#a")) {
				t.Errorf("match = %+v", m)
			}
		})
	}
}

// --- スケジューラ ---

type mockFetcher struct {
	mu      sync.Mutex
	fetched []string
	skip    map[string]bool
	fetchFn func(ctx context.Context, feedURL string) (int, error)
}

func (m *mockFetcher) Due(feedURL string) bool { return !m.skip[feedURL] }

func (m *mockFetcher) Fetch(ctx context.Context, feedURL string) (int, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, feedURL)
	m.mu.Unlock()
	if m.fetchFn != nil {
		return m.fetchFn(ctx, feedURL)
	}
	return 1, nil
}

func TestScheduler_RunOnce_SkipsNotDueAndSumsCreated(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockFetcher{
		skip: map[string]bool{"https://b.example.com/feed": true},
		fetchFn: func(_ context.Context, feedURL string) (int, error) {
			if feedURL == "https://c.example.com/feed" {
				return 0, errors.New("timeout")
			}
			return 3, nil
		},
	}
	s := NewScheduler([]string{
		"https://a.example.com/feed",
		"https://b.example.com/feed",
		"https://c.example.com/feed",
	}, fetcher, newTestLogger(&buf), 2)

	if got := s.RunOnce(context.Background()); got != 3 {
		t.Errorf("RunOnce() = %d, want 3", got)
	}
	if len(fetcher.fetched) != 2 {
		t.Errorf("fetched = %v, want 2 feeds", fetcher.fetched)
	}
	if !strings.Contains(buf.String(), "スケジュールフィードの取り込みに失敗しました") {
		t.Error("failure should be logged")
	}
}

func TestScheduler_RespectsMaxConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	fetcher := &mockFetcher{
		fetchFn: func(context.Context, string) (int, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return 0, nil
		},
	}
	urls := make([]string, 8)
	for i := range urls {
		urls[i] = "https://club.example.com/feed/" + string(rune('a'+i))
	}
	var buf bytes.Buffer
	s := NewScheduler(urls, fetcher, newTestLogger(&buf), 2)
	s.RunOnce(context.Background())

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestScheduler_StartStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockFetcher{}
	s := NewScheduler([]string{"https://a.example.com/feed"}, fetcher, newTestLogger(&buf), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	if len(fetcher.fetched) != 1 {
		t.Errorf("fetched = %d, want 1 immediate run", len(fetcher.fetched))
	}
}
