package importer

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/chatpadel/internal/model"
)

const (
	// dateLayout は取り込んだ試合の日付表示形式。
	dateLayout = "Mon, Jan 2"
	// timeLayout は取り込んだ試合の時刻表示形式。
	timeLayout = "15:04"
)

// TextCleaner はフィード由来のテキストからマークアップを除去する。
type TextCleaner interface {
	Clean(input string) string
}

// convertItems はフィードの各エントリを試合の作成入力に変換する。
// タイトル・参照キー・日時のいずれかが欠けたエントリは除外する。
func convertItems(feedURL string, items []*gofeed.Item, cleaner TextCleaner, loc *time.Location) []model.NewMatch {
	out := make([]model.NewMatch, 0, len(items))
	for _, item := range items {
		if m, ok := convertItem(feedURL, item, cleaner, loc); ok {
			out = append(out, m)
		}
	}
	return out
}

func convertItem(feedURL string, item *gofeed.Item, cleaner TextCleaner, loc *time.Location) (model.NewMatch, bool) {
	if item == nil {
		return model.NewMatch{}, false
	}

	location := item.Title
	if cleaner != nil {
		location = cleaner.Clean(location)
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return model.NewMatch{}, false
	}

	key := strings.TrimSpace(item.GUID)
	if key == "" {
		key = strings.TrimSpace(item.Link)
	}
	if key == "" {
		return model.NewMatch{}, false
	}

	var start *time.Time
	switch {
	case item.PublishedParsed != nil:
		start = item.PublishedParsed
	case item.UpdatedParsed != nil:
		start = item.UpdatedParsed
	default:
		return model.NewMatch{}, false
	}
	at := start.In(loc)

	return model.NewMatch{
		Location:    location,
		Date:        at.Format(dateLayout),
		Time:        at.Format(timeLayout),
		Level:       levelFromCategories(item.Categories),
		MaxPlayers:  model.DefaultMaxPlayers,
		ExternalRef: feedURL + "#" + key,
	}, true
}

// levelFromCategories はスキルレベルとして解釈できる最初のカテゴリを返す。
// 該当がなければintermediate。
func levelFromCategories(categories []string) model.SkillLevel {
	for _, c := range categories {
		if level, err := model.ParseSkillLevel(c); err == nil {
			return level
		}
	}
	return model.SkillLevelIntermediate
}
