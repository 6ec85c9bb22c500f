package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"civicdesk/backend/internal/localization"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Bot is the part of *tgbotapi.BotAPI the command service needs.
type Bot interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ComplaintReader is the storage used by the commands.
type ComplaintReader interface {
	GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error)
	CountComplaintsByStatus(ctx context.Context) (map[models.Status]int64, error)
}

// CommandService answers /status and /stats in the ops chat.
type CommandService struct {
	bot       Bot
	store     ComplaintReader
	chatID    int64
	localizer *localization.Localizer
	lang      string
	logger    *zap.Logger
}

// NewCommandService builds the command service. Messages from other chats are ignored.
func NewCommandService(bot Bot, store ComplaintReader, chatID int64, localizer *localization.Localizer, lang string, logger *zap.Logger) *CommandService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lang == "" {
		lang = localization.DefaultLanguage
	}
	return &CommandService{bot: bot, store: store, chatID: chatID, localizer: localizer, lang: lang, logger: logger}
}

// Run polls for updates until ctx is cancelled.
func (s *CommandService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.bot.GetUpdatesChan(u)
	defer s.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() || msg.Chat.ID != s.chatID {
				continue
			}
			reply := s.Reply(ctx, msg.Command(), msg.CommandArguments())
			if _, err := s.bot.Send(tgbotapi.NewMessage(s.chatID, reply)); err != nil {
				s.logger.Warn("telegram reply failed", zap.String("command", msg.Command()), zap.Error(err))
			}
		}
	}
}

// Reply computes the answer to one command.
func (s *CommandService) Reply(ctx context.Context, command, args string) string {
	switch command {
	case "status":
		id := strings.TrimSpace(args)
		if id == "" {
			return s.localizer.GetString(s.lang, "cmd.status.usage")
		}
		c, err := s.store.GetComplaintByID(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return s.localizer.Format(s.lang, "cmd.status.not_found", map[string]string{"complaint": id})
		}
		if err != nil {
			s.logger.Error("status command failed", zap.String("complaint_id", id), zap.Error(err))
			return s.localizer.GetString(s.lang, "cmd.error")
		}
		return s.localizer.Format(s.lang, "cmd.status", map[string]string{
			"complaint": shortID(c.ID),
			"title":     c.Title,
			"category":  string(c.Category),
			"priority":  string(c.Priority),
			"status":    s.localizer.GetString(s.lang, "status."+string(c.Status)),
		})

	case "stats":
		counts, err := s.store.CountComplaintsByStatus(ctx)
		if err != nil {
			s.logger.Error("stats command failed", zap.Error(err))
			return s.localizer.GetString(s.lang, "cmd.error")
		}
		var b strings.Builder
		b.WriteString(s.localizer.GetString(s.lang, "cmd.stats.header"))
		for _, st := range models.Statuses {
			fmt.Fprintf(&b, "\n%s: %d", s.localizer.GetString(s.lang, "status."+string(st)), counts[st])
		}
		return b.String()

	default:
		return s.localizer.GetString(s.lang, "cmd.help")
	}
}
