package telegram

import (
	"strings"

	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Menus renders the reply keyboards and maps their labels back to events.
type Menus struct {
	idle     tgbotapi.ReplyKeyboardMarkup
	chatting tgbotapi.ReplyKeyboardMarkup
	buttons  map[string]models.EventKind
}

var buttonKeys = map[string]models.EventKind{
	"button_search":  models.EventSearch,
	"button_stop":    models.EventStop,
	"button_next":    models.EventNext,
	"button_like":    models.EventLike,
	"button_dislike": models.EventDislike,
	"button_report":  models.EventReport,
}

// NewMenus builds keyboards in lang. Labels of every listed language are
// recognized, so a stale keyboard still works after a language switch.
func NewMenus(loc *localization.Localizer, lang string, recognized ...string) *Menus {
	label := func(key string) string { return loc.GetString(lang, key) }

	m := &Menus{
		idle: tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label("button_search"))),
		),
		chatting: tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(label("button_stop")),
				tgbotapi.NewKeyboardButton(label("button_next")),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(label("button_like")),
				tgbotapi.NewKeyboardButton(label("button_dislike")),
				tgbotapi.NewKeyboardButton(label("button_report")),
			),
		),
		buttons: make(map[string]models.EventKind),
	}
	m.idle.ResizeKeyboard = true
	m.chatting.ResizeKeyboard = true

	for _, l := range append([]string{lang}, recognized...) {
		for key, kind := range buttonKeys {
			m.buttons[loc.GetString(l, key)] = kind
		}
	}
	return m
}

// Keyboard returns the markup for menu, or nil for MenuNone.
func (m *Menus) Keyboard(menu models.Menu) interface{} {
	switch menu {
	case models.MenuIdle:
		return m.idle
	case models.MenuChatting:
		return m.chatting
	}
	return nil
}

// ButtonEvent resolves a pressed button label.
func (m *Menus) ButtonEvent(text string) (models.EventKind, bool) {
	kind, ok := m.buttons[strings.TrimSpace(text)]
	return kind, ok
}
