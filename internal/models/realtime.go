package models

// EventKind identifies an inbound platform event after command parsing.
type EventKind string

const (
	EventStart   EventKind = "start"
	EventSearch  EventKind = "search"
	EventStop    EventKind = "stop"
	EventNext    EventKind = "next"
	EventMessage EventKind = "message"
	EventReport  EventKind = "report"
	EventLike    EventKind = "like"
	EventDislike EventKind = "dislike"
	EventGender  EventKind = "gender"
	EventHelp    EventKind = "help"

	// Admin-only.
	EventMute   EventKind = "mute"
	EventUnmute EventKind = "unmute"
	EventStats  EventKind = "stats"
)

// Event is one inbound update from the messaging platform.
type Event struct {
	Kind   EventKind
	UserID int64
	ChatID int64
	// MessageID identifies the message to relay.
	MessageID int
	// Args is the text after the command, e.g. the target id of "/mute 123".
	Args string
}

// Menu selects the reply keyboard attached to an outbound text.
type Menu int

const (
	MenuNone Menu = iota
	MenuIdle
	MenuChatting
)

// OutboundKind tells the outbox how to deliver a message.
type OutboundKind int

const (
	OutboundText OutboundKind = iota
	// OutboundCopy re-sends an existing message without re-encoding its content.
	OutboundCopy
)

// OutboundMessage is a single fire-and-forget delivery.
type OutboundMessage struct {
	Kind      OutboundKind
	ChatID    int64
	Text      string
	Markdown  bool
	Menu      Menu
	FromChat  int64
	MessageID int
}

// TextTo builds a plain text message.
func TextTo(chatID int64, text string, menu Menu) OutboundMessage {
	return OutboundMessage{Kind: OutboundText, ChatID: chatID, Text: text, Menu: menu}
}

// CopyTo builds a relay of fromChat/messageID into chatID.
func CopyTo(chatID, fromChat int64, messageID int) OutboundMessage {
	return OutboundMessage{Kind: OutboundCopy, ChatID: chatID, FromChat: fromChat, MessageID: messageID}
}
