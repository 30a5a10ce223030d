package importer

import (
	"sync"
	"time"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultStop はフェッチ停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// parseFailureThreshold はパース失敗によるフェッチ停止の閾値。
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 304:
		return FetchResultNotModified
	case statusCode == 404 || statusCode == 410:
		return FetchResultStop
	case statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429:
		return FetchResultBackoff
	case statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// feedState はスケジュールフィードごとの取得状態。プロセス内でのみ保持する。
type feedState struct {
	// resolvedURL はクラブのWebページから検出したフィードURL。空の場合は設定値をそのまま取得する。
	resolvedURL       string
	etag              string
	lastModified      string
	consecutiveErrors int
	nextAttemptAt     time.Time
	stopped           bool
	reason            string
}

// stateTable はフィードURLごとのfeedStateを保持する。
type stateTable struct {
	mu     sync.Mutex
	states map[string]*feedState
}

func newStateTable() *stateTable {
	return &stateTable{states: make(map[string]*feedState)}
}

// snapshot はフィードの状態のコピーを返す。
func (t *stateTable) snapshot(feedURL string) feedState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[feedURL]; ok {
		return *s
	}
	return feedState{}
}

func (t *stateTable) update(feedURL string, fn func(s *feedState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[feedURL]
	if !ok {
		s = &feedState{}
		t.states[feedURL] = s
	}
	fn(s)
}

// due はnow時点でフィードを取得してよいかを返す。
func (s feedState) due(now time.Time) bool {
	return !s.stopped && !now.Before(s.nextAttemptAt)
}

// applyStop はフィードの取得を停止する。
func (s *feedState) applyStop(reason string) {
	s.stopped = true
	s.reason = reason
}

// applyBackoff は連続エラー回数をインクリメントし、次回取得時刻を遅らせる。
func (s *feedState) applyBackoff(now time.Time, reason string) {
	s.consecutiveErrors++
	s.reason = reason
	s.nextAttemptAt = now.Add(CalculateBackoff(s.consecutiveErrors - 1))
}

// applyParseFailure はパース失敗を記録し、閾値に達した場合は取得を停止する。
func (s *feedState) applyParseFailure(reason string) {
	s.consecutiveErrors++
	s.reason = reason
	if s.consecutiveErrors >= parseFailureThreshold {
		s.stopped = true
	}
}

// applySuccess は取得成功時に状態をリセットする。
func (s *feedState) applySuccess() {
	s.consecutiveErrors = 0
	s.reason = ""
	s.nextAttemptAt = time.Time{}
}
