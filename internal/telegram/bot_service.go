// Package telegram connects the pairing core to the Telegram Bot API: it turns
// updates into events, runs them through the Controller and delivers the
// replies through the Outbox.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotService is responsible for receiving Telegram updates and routing them to the controller.
type BotService struct {
	BotAPI        *tgbotapi.BotAPI
	Controller    *Controller
	Menus         *Menus
	UpdateTimeout int

	log *logger.Logger
}

// NewBotAPI authorizes token and routes the library's own logging through log.
func NewBotAPI(token string, debug bool, log *logger.Logger) (*tgbotapi.BotAPI, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := tgbotapi.SetLogger(botLogger{log: log.With("component", "tgbotapi")}); err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorization failed: %w", err)
	}
	bot.Debug = debug
	log.Info("authorized on telegram", "account", bot.Self.UserName)
	return bot, nil
}

// NewBotService creates a new BotService instance.
func NewBotService(bot *tgbotapi.BotAPI, ctrl *Controller, menus *Menus, updateTimeout int, log *logger.Logger) *BotService {
	if log == nil {
		log = logger.Nop()
	}
	return &BotService{
		BotAPI:        bot,
		Controller:    ctrl,
		Menus:         menus,
		UpdateTimeout: updateTimeout,
		log:           log.With("service", "bot"),
	}
}

// Run is the main loop for receiving Telegram updates. Each update is handled
// on its own goroutine; Run waits for them before returning.
func (s *BotService) Run(ctx context.Context) error {
	s.Controller.AnnounceOnline(s.BotAPI.Self.FirstName, s.BotAPI.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = s.UpdateTimeout
	updates := s.BotAPI.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	s.log.Info("receiving updates")
	for {
		select {
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			s.log.Info("stopped receiving updates")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := eventFromMessage(update.Message, s.Menus)
			if !ok {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Controller.Handle(ctx, ev)
			}()
		}
	}
}

var commandEvents = map[string]models.EventKind{
	"start":  models.EventStart,
	"search": models.EventSearch,
	"stop":   models.EventStop,
	"next":   models.EventNext,
	"report": models.EventReport,
	"gender": models.EventGender,
	"help":   models.EventHelp,
	"mute":   models.EventMute,
	"unmute": models.EventUnmute,
	"stats":  models.EventStats,
}

// eventFromMessage translates a Telegram message. Commands and menu buttons
// become their events; anything else is a message to relay.
func eventFromMessage(msg *tgbotapi.Message, menus *Menus) (models.Event, bool) {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return models.Event{}, false
	}

	ev := models.Event{
		Kind:      models.EventMessage,
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
	}

	if msg.IsCommand() {
		kind, ok := commandEvents[strings.ToLower(msg.Command())]
		if !ok {
			kind = models.EventHelp
		}
		ev.Kind = kind
		ev.Args = strings.TrimSpace(msg.CommandArguments())
		return ev, true
	}

	if menus != nil && msg.Text != "" {
		if kind, ok := menus.ButtonEvent(msg.Text); ok {
			ev.Kind = kind
		}
	}
	return ev, true
}

// botLogger adapts the logger to tgbotapi.BotLogger.
type botLogger struct {
	log *logger.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
