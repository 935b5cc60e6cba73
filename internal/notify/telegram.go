package notify

import (
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mntlbot/rebalancer/pkg/logger"
)

// Telegram 通过 Bot API 推送告警消息
type Telegram struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegram 构造推送器。token 或 chatID 为空时返回 Nop。
func NewTelegram(token, chatID string) Notifier {
	if token == "" || chatID == "" {
		return Nop{}
	}
	return &Telegram{
		client: resty.New().
			SetBaseURL("https://api.telegram.org").
			SetTimeout(10 * time.Second),
		token:  token,
		chatID: chatID,
	}
}

// Notify 发送即忘；HTTP 失败只记日志
func (t *Telegram) Notify(message string) {
	resp, err := t.client.R().
		SetQueryParams(map[string]string{
			"chat_id": t.chatID,
			"text":    message,
		}).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		logger.Warnf("Telegram 通知发送失败: %v", err)
		return
	}
	if !resp.IsSuccess() {
		logger.Warnf("Telegram 通知被拒绝: status=%d body=%s", resp.StatusCode(), resp.String())
	}
}
