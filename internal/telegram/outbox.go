package telegram

import (
	"context"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
)

// botAPI is the part of *tgbotapi.BotAPI the outbox needs.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
}

// Outbox delivers outbound messages from a bounded queue with a fixed pool
// of workers. Send never blocks; failures are logged per recipient.
type Outbox struct {
	bot     botAPI
	menus   *Menus
	queue   chan models.OutboundMessage
	workers int
	log     *logger.Logger
}

func NewOutbox(bot botAPI, menus *Menus, workers, buffer int, log *logger.Logger) *Outbox {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Outbox{
		bot:     bot,
		menus:   menus,
		queue:   make(chan models.OutboundMessage, buffer),
		workers: workers,
		log:     log.With("service", "outbox"),
	}
}

// Send enqueues msg. A full queue drops it.
func (o *Outbox) Send(msg models.OutboundMessage) {
	select {
	case o.queue <- msg:
	default:
		o.log.Warn("outbox full, dropping message", "chat_id", msg.ChatID, "kind", msg.Kind)
	}
}

// Run drains the queue until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < o.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg := <-o.queue:
					o.deliver(msg)
				}
			}
		})
	}
	o.log.Info("outbox started", "workers", o.workers)
	return g.Wait()
}

func (o *Outbox) deliver(msg models.OutboundMessage) {
	var err error
	switch msg.Kind {
	case models.OutboundCopy:
		_, err = o.bot.CopyMessage(tgbotapi.NewCopyMessage(msg.ChatID, msg.FromChat, msg.MessageID))
	default:
		_, err = o.bot.Send(o.textConfig(msg))
	}
	if err != nil {
		o.log.Warn("delivery failed", "chat_id", msg.ChatID, "kind", msg.Kind, "error", err)
	}
}

func (o *Outbox) textConfig(msg models.OutboundMessage) tgbotapi.MessageConfig {
	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if o.menus != nil {
		if kb := o.menus.Keyboard(msg.Menu); kb != nil {
			cfg.ReplyMarkup = kb
		}
	}
	return cfg
}
