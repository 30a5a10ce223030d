// Package notify は参加確認・登録完了・パスワード再設定の通知を非同期に送信する。
// 送信失敗はログとメトリクスに記録するのみで、呼び出し元には伝播しない。
package notify

import (
	"fmt"
	"strings"

	"github.com/hitoshi/chatpadel/internal/model"
)

// Kind は通知ジョブの種別。
type Kind string

const (
	KindMatchJoined   Kind = "match_joined"
	KindWelcome       Kind = "welcome"
	KindPasswordReset Kind = "password_reset"
)

// Recipient は通知の宛先。
type Recipient struct {
	Name  string
	Email string
	Phone string
}

// Job は通知キューに積まれる1件の送信依頼。
type Job struct {
	Kind      Kind
	To        Recipient
	Match     *model.Match // KindMatchJoinedのみ
	ResetLink string       // KindPasswordResetのみ
}

// MatchJoined は参加確認のメールとSMSを送るジョブを生成する。
func MatchJoined(user *model.User, match *model.Match) Job {
	m := *match
	return Job{
		Kind:  KindMatchJoined,
		To:    Recipient{Name: user.FullName, Email: user.Email, Phone: user.PhoneNumber},
		Match: &m,
	}
}

// Welcome は登録完了メールのジョブを生成する。
func Welcome(user *model.User) Job {
	return Job{
		Kind: KindWelcome,
		To:   Recipient{Name: user.FullName, Email: user.Email},
	}
}

// PasswordReset はパスワード再設定メールのジョブを生成する。
func PasswordReset(email, resetLink string) Job {
	return Job{
		Kind:      KindPasswordReset,
		To:        Recipient{Email: email},
		ResetLink: resetLink,
	}
}

// Email は送信するメール1通。
type Email struct {
	To      string
	Subject string
	Body    string
}

// SMS は送信するSMS1通。
type SMS struct {
	To   string
	Body string
}

// Render はジョブから送信するメールとSMSを組み立てる。
// 宛先が空のチャネルはnilを返す。
func (j Job) Render() (*Email, *SMS, error) {
	switch j.Kind {
	case KindMatchJoined:
		if j.Match == nil {
			return nil, nil, fmt.Errorf("match is required for %s", j.Kind)
		}
		var email *Email
		if j.To.Email != "" {
			email = &Email{
				To:      j.To.Email,
				Subject: fmt.Sprintf("🎾 Match Confirmation - %s", j.Match.Location),
				Body: fmt.Sprintf("Hello %s, you have successfully joined the match at %s on %s at %s. See you there!",
					j.To.Name, j.Match.Location, j.Match.Date, j.Match.Time),
			}
		}
		var sms *SMS
		if j.To.Phone != "" {
			sms = &SMS{
				To: j.To.Phone,
				Body: fmt.Sprintf("ChatPadel: You're in! Match confirmed @ %s, %s %s. 🎾",
					j.Match.Location, j.Match.Date, j.Match.Time),
			}
		}
		return email, sms, nil

	case KindWelcome:
		body := strings.Join([]string{
			fmt.Sprintf("Hello %s,", j.To.Name),
			"",
			"Welcome to ChatPadel! Your account has been successfully created.",
			"",
			"You can now:",
			"- Join matches with other padel players",
			"- Get coaching tips from our AI Coach",
			"- Connect with the padel community",
			"",
			"Enjoy your padel journey!",
			"",
			"Best regards,",
			"The ChatPadel Team",
		}, "\n")
		return &Email{To: j.To.Email, Subject: "Welcome to ChatPadel! 🎾", Body: body}, nil, nil

	case KindPasswordReset:
		if j.ResetLink == "" {
			return nil, nil, fmt.Errorf("reset link is required for %s", j.Kind)
		}
		body := fmt.Sprintf("You requested a password reset. Please use the following link to reset your password:\n\n%s\n\nIf you did not request this, please ignore this email.", j.ResetLink)
		return &Email{To: j.To.Email, Subject: "ChatPadel - Reset Your Password", Body: body}, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown notification kind: %q", j.Kind)
	}
}
