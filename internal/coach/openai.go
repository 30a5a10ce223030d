package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/chatpadel/internal/model"
)

const (
	// maxCompletionTokens は1応答あたりの最大トークン数。
	maxCompletionTokens = 500
	// maxResponseBytes はAPIレスポンスとして読み取る最大バイト数。
	maxResponseBytes = 1 << 20
	// emptyReply はモデルが空の応答を返した場合の代替メッセージ。
	emptyReply = "I couldn't generate a response. Let's try a forehand volley instead!"
)

// OpenAIClient はChat Completions APIでコーチの応答を生成する。
type OpenAIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
	model      string
}

// NewOpenAIClient はOpenAIClientの新しいインスタンスを生成する。
// baseURLは末尾スラッシュなしのAPIルート（例: https://api.openai.com/v1）。
func NewOpenAIClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey, model string) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   baseURL + "/chat/completions",
		apiKey:     apiKey,
		model:      model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Advise はシステムプロンプト、会話履歴、ユーザーのメッセージを送信し、応答本文を返す。
func (c *OpenAIClient) Advise(ctx context.Context, history []*model.ChatMessage, message string) (string, error) {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: message})

	payload, err := json.Marshal(chatCompletionRequest{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: maxCompletionTokens,
	})
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("OpenAI APIの呼び出しに失敗しました", slog.String("error", err.Error()))
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("OpenAI APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("OpenAI APIがステータス %d を返しました", resp.StatusCode)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return emptyReply, nil
	}
	return result.Choices[0].Message.Content, nil
}

// Mode はModeOpenAIを返す。
func (c *OpenAIClient) Mode() string {
	return ModeOpenAI
}
