package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// WebhookSMSSender はSMSゲートウェイのWebhookにJSONをPOSTしてSMSを送信する。
// HTTPクライアントにはSSRF防止付きのクライアントを渡す。
type WebhookSMSSender struct {
	url    string
	client *http.Client
}

// NewWebhookSMSSender はWebhookSMSSenderを生成する。
func NewWebhookSMSSender(url string, client *http.Client) *WebhookSMSSender {
	return &WebhookSMSSender{url: url, client: client}
}

type smsPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Send はSMSを1通送信する。2xx以外のレスポンスはエラーとする。
func (s *WebhookSMSSender) Send(ctx context.Context, sms *SMS) error {
	payload, err := json.Marshal(smsPayload{To: sms.To, Body: sms.Body})
	if err != nil {
		return fmt.Errorf("failed to encode SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ChatPadel/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("SMS webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("SMS webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSMSSender はWebhook未設定時に送信内容をログへ出力するSMSSender。
type LogSMSSender struct {
	logger *slog.Logger
}

// NewLogSMSSender はLogSMSSenderを生成する。
func NewLogSMSSender(logger *slog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger}
}

// Send はSMSの内容をログに出力する。
func (s *LogSMSSender) Send(_ context.Context, sms *SMS) error {
	s.logger.Info("SMS送信（ログ出力のみ）",
		slog.String("to", sms.To),
		slog.String("body", sms.Body),
	)
	return nil
}

var (
	_ SMSSender = (*WebhookSMSSender)(nil)
	_ SMSSender = (*LogSMSSender)(nil)
)
