// Package telegram posts complaint lifecycle events to an operations chat and
// answers a few read-only commands there.
package telegram

import (
	"context"
	"sync"

	"civicdesk/backend/internal/localization"
	"civicdesk/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const queueSize = 128

// Sender is the part of *tgbotapi.BotAPI used to post messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier is an events subscriber that relays every event to one chat.
type Notifier struct {
	sender    Sender
	chatID    int64
	localizer *localization.Localizer
	lang      string
	queue     chan models.ComplaintEvent
	once      sync.Once
	logger    *zap.Logger
}

// NewNotifier builds a notifier posting to chatID in lang.
func NewNotifier(sender Sender, chatID int64, localizer *localization.Localizer, lang string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lang == "" {
		lang = localization.DefaultLanguage
	}
	return &Notifier{
		sender:    sender,
		chatID:    chatID,
		localizer: localizer,
		lang:      lang,
		queue:     make(chan models.ComplaintEvent, queueSize),
		logger:    logger,
	}
}

func (n *Notifier) ID() string { return "telegram:ops" }

// Wants accepts everything; the ops chat is staff-only.
func (n *Notifier) Wants(models.ComplaintEvent) bool { return true }

func (n *Notifier) Deliver(ev models.ComplaintEvent) bool {
	select {
	case n.queue <- ev:
		return true
	default:
		return false
	}
}

func (n *Notifier) Close() {
	n.once.Do(func() { close(n.queue) })
}

// Run sends queued events until the queue is closed or ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.queue:
			if !ok {
				return
			}
			msg := tgbotapi.NewMessage(n.chatID, n.Render(ev))
			if _, err := n.sender.Send(msg); err != nil {
				n.logger.Warn("telegram send failed",
					zap.String("complaint_id", ev.ComplaintID),
					zap.String("action", string(ev.Action)),
					zap.Error(err))
			}
		}
	}
}

// Render formats ev in the notifier's language.
func (n *Notifier) Render(ev models.ComplaintEvent) string {
	return n.localizer.Format(n.lang, "event."+string(ev.Action), map[string]string{
		"complaint": shortID(ev.ComplaintID),
		"actor":     shortID(ev.ActorID) + " (" + string(ev.ActorRole) + ")",
		"worker":    shortID(ev.WorkerID),
		"from":      n.status(ev.FromStatus),
		"to":        n.status(ev.ToStatus),
		"details":   ev.Details,
	})
}

func (n *Notifier) status(s models.Status) string {
	if s == "" {
		return ""
	}
	return n.localizer.GetString(n.lang, "status."+string(s))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
