// Package alerts delivers operational notifications to the Telegram
// accounts registered in the users table.
package alerts

import (
	"context"
	"fmt"

	"github.com/northstaff/hragent/pkg/logging"
)

// Sender is the message delivery surface, implemented by telegram.Bot.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, threadID int64, text string, markdown bool) error
}

// ChatLister resolves the registered alert recipients.
type ChatLister interface {
	ListAlertChats(ctx context.Context, adminOnly bool) ([]int64, error)
}

type Service struct {
	chats  ChatLister
	bot    Sender
	logger *logging.Logger
}

func New(chats ChatLister, bot Sender, logger *logging.Logger) *Service {
	return &Service{chats: chats, bot: bot, logger: logger.Named("alerts")}
}

// Broadcast sends the text to every registered user. Delivery failures are
// logged per chat and do not abort the rest.
func (s *Service) Broadcast(ctx context.Context, text string) {
	s.send(ctx, text, false)
}

// AdminAlert sends the text to admin users only.
func (s *Service) AdminAlert(ctx context.Context, text string) {
	s.send(ctx, text, true)
}

// LowBalance formats the low balance warning broadcast.
func LowBalance(balance, threshold float64) string {
	return fmt.Sprintf("⚠️ Внимание! Баланс опустился ниже порога %.2f ₽ и составляет %.2f ₽. Новые диалоги не запускаются.", threshold, balance)
}

func (s *Service) send(ctx context.Context, text string, adminOnly bool) {
	if s == nil || s.bot == nil {
		return
	}
	chatIDs, err := s.chats.ListAlertChats(ctx, adminOnly)
	if err != nil {
		s.logger.Error("failed to list alert chats", "error", err)
		return
	}
	for _, chatID := range chatIDs {
		if err := s.bot.SendMessage(ctx, chatID, 0, text, false); err != nil {
			s.logger.Warn("failed to deliver alert", "chat_id", chatID, "error", err)
		}
	}
}
