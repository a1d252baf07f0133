// Package notify 运维告警
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/ports"
)

// MaxMessageLength Telegram 单条消息上限
const MaxMessageLength = 4096

var (
	_ ports.Notifier = (*Telegram)(nil)
	_ ports.Notifier = Log{}
)

// Telegram 把告警发到一个固定会话
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram 创建 bot，会调用 getMe 校验 token
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, chatID, tgbotapi.APIEndpoint)
}

// NewTelegramWithEndpoint 指定 API 地址（格式同 tgbotapi.APIEndpoint）
func NewTelegramWithEndpoint(token string, chatID int64, endpoint string) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token 和 chat id 都必须配置")
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logrus.WithField("component", "notify").Infof("Telegram bot 已授权: @%s", api.Self.UserName)
	return &Telegram{api: api, chatID: chatID}, nil
}

// Notify 发送告警，超长时按行拆分
func (t *Telegram) Notify(ctx context.Context, text string) error {
	for _, part := range splitMessage(text, MaxMessageLength) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, part)); err != nil {
			return fmt.Errorf("发送 telegram 消息失败: %w", err)
		}
	}
	return nil
}

// Log 未配置 Telegram 时只写日志
type Log struct{}

func (Log) Notify(_ context.Context, text string) error {
	logrus.WithField("component", "notify").Warn(strings.ReplaceAll(text, "\n", " | "))
	return nil
}

// splitMessage 按行切分，单行超长时硬切
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	current := ""
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLength {
			if current != "" {
				messages = append(messages, current)
				current = ""
			}
			messages = append(messages, line[:maxLength])
			line = line[maxLength:]
		}
		if len(current)+len(line)+1 > maxLength {
			messages = append(messages, current)
			current = line
			continue
		}
		if current != "" {
			current += "\n"
		}
		current += line
	}
	if current != "" {
		messages = append(messages, current)
	}
	return messages
}
