package security

import "testing"

var _ TextSanitizer = NewTextSanitizer()

func TestTextSanitizer_Clean(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "空文字列", input: "", want: ""},
		{name: "プレーンテキストはそのまま", input: "Work on your bandeja.", want: "Work on your bandeja."},
		{name: "タグを除去", input: "<p>Keep the <strong>lob</strong> deep</p>", want: "Keep the lob deep"},
		{name: "scriptの中身も除去", input: `hi<script>alert("x")</script>`, want: "hi"},
		{name: "イベント属性付きタグ", input: `<img src=x onerror=alert(1)>ok`, want: "ok"},
		{name: "エンティティを戻す", input: "Tom & Jerry <b>vs</b> pros", want: "Tom & Jerry vs pros"},
		{name: "前後の空白を除去", input: "  <em>smash</em>  ", want: "smash"},
		{name: "絵文字とマーカーを保持", input: "Found matches 🎾 [MATCH_FINDER]", want: "Found matches 🎾 [MATCH_FINDER]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 除去済みのテキストを再度通しても変化しないこと
func TestTextSanitizer_StableOnCleanText(t *testing.T) {
	s := NewTextSanitizer()
	once := s.Clean("<p>Hello Ana, see you at Main Arena!</p>")
	if twice := s.Clean(once); twice != once {
		t.Errorf("second pass = %q, want %q", twice, once)
	}
}
