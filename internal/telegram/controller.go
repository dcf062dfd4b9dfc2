package telegram

import (
	"context"
	"errors"

	"randomchat/backend/internal/complaint"
	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/storage"

	"github.com/google/uuid"
)

// PairingService is the state store as seen by the controller.
// *chathub.MatcherService implements it.
type PairingService interface {
	EnsureUser(ctx context.Context, userID int64)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	FindAndPair(ctx context.Context, userID int64) (int64, bool, error)
	Disconnect(ctx context.Context, userID int64) (int64, bool, error)
	Mute(ctx context.Context, userID int64) error
	Unmute(ctx context.Context, userID int64) error
	SetPreference(ctx context.Context, userID int64, gender models.Gender) error
	CountByStatus(ctx context.Context) (models.StatusCounts, error)
}

// Sender accepts outbound messages without blocking.
type Sender interface {
	Send(msg models.OutboundMessage)
}

// Controller turns inbound events into state transitions and replies.
// Storage faults are logged and leave the conversation unchanged.
type Controller struct {
	Pairing    PairingService
	Out        Sender
	Complaints *complaint.Service
	Localizer  *localization.Localizer
	Lang       string

	log *logger.Logger
}

// NewController wires the pairing core, the outbox and moderation into a Controller.
func NewController(p PairingService, out Sender, c *complaint.Service, loc *localization.Localizer, lang string, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		Pairing:    p,
		Out:        out,
		Complaints: c,
		Localizer:  loc,
		Lang:       lang,
		log:        log.With("service", "controller"),
	}
}

// turn carries the state of one event being handled.
type turn struct {
	ctx context.Context
	ev  models.Event
	log *logger.Logger
}

func (c *Controller) text(key string) string {
	return c.Localizer.GetString(c.Lang, key)
}

func (c *Controller) reply(chatID int64, key string, menu models.Menu) {
	c.Out.Send(models.TextTo(chatID, c.text(key), menu))
}

// Handle processes one event. It never panics on storage or delivery errors.
func (c *Controller) Handle(ctx context.Context, ev models.Event) {
	t := &turn{
		ctx: ctx,
		ev:  ev,
		log: c.log.With("trace_id", uuid.NewString(), "event", string(ev.Kind), "user_id", ev.UserID),
	}
	t.log.Debug("event received")

	switch ev.Kind {
	case models.EventMute, models.EventUnmute, models.EventStats:
		c.handleAdmin(t)
		return
	}

	c.Pairing.EnsureUser(ctx, ev.UserID)
	user, err := c.Pairing.GetUser(ctx, ev.UserID)
	if err != nil {
		t.log.Error("failed to load user", "error", err)
		return
	}
	if user.Muted {
		c.reply(ev.ChatID, "blocked", models.MenuNone)
		return
	}

	switch ev.Kind {
	case models.EventStart:
		welcome := models.TextTo(ev.ChatID, c.text("welcome"), models.MenuNone)
		welcome.Markdown = true
		c.Out.Send(welcome)
		c.search(t)
	case models.EventSearch:
		c.search(t)
	case models.EventStop:
		c.stop(t)
	case models.EventNext:
		c.next(t)
	case models.EventMessage:
		c.relay(t, user)
	case models.EventReport:
		c.report(t, user)
	case models.EventLike:
		c.reply(ev.ChatID, "like", models.MenuNone)
	case models.EventDislike:
		c.reply(ev.ChatID, "dislike", models.MenuNone)
	case models.EventGender:
		c.handleGender(t)
	case models.EventHelp:
		help := models.TextTo(ev.ChatID, c.text("help"), menuFor(user))
		help.Markdown = true
		c.Out.Send(help)
	default:
		t.log.Warn("unhandled event")
	}
}

func menuFor(u *models.User) models.Menu {
	if u.IsChatting() {
		return models.MenuChatting
	}
	return models.MenuIdle
}

func (c *Controller) search(t *turn) {
	userID := t.ev.UserID
	partnerID, ok, err := c.Pairing.FindAndPair(t.ctx, userID)
	switch {
	case errors.Is(err, storage.ErrAlreadyPaired):
		c.reply(t.ev.ChatID, "already_chatting", models.MenuChatting)
		return
	case errors.Is(err, storage.ErrUserMuted):
		c.reply(t.ev.ChatID, "blocked", models.MenuNone)
		return
	case err != nil:
		t.log.Error("pairing failed", "error", err)
		return
	}

	if !ok {
		c.reply(t.ev.ChatID, "searching", models.MenuIdle)
		return
	}
	t.log.Info("users paired", "partner_id", partnerID)
	c.reply(t.ev.ChatID, "matched", models.MenuChatting)
	c.reply(partnerID, "matched", models.MenuChatting)
}

func (c *Controller) stop(t *turn) {
	partnerID, ok, err := c.Pairing.Disconnect(t.ctx, t.ev.UserID)
	if err != nil {
		t.log.Error("disconnect failed", "error", err)
		return
	}
	if ok {
		c.reply(partnerID, "partner_left", models.MenuIdle)
	}
	c.reply(t.ev.ChatID, "stopped", models.MenuIdle)
}

// next leaves the current chat without telling the partner and searches again.
func (c *Controller) next(t *turn) {
	partnerID, ok, err := c.Pairing.Disconnect(t.ctx, t.ev.UserID)
	if err != nil {
		t.log.Error("disconnect failed", "error", err)
		return
	}
	if ok {
		t.log.Info("left chat silently", "partner_id", partnerID)
	}
	c.reply(t.ev.ChatID, "next_searching", models.MenuNone)
	c.search(t)
}

func (c *Controller) relay(t *turn, user *models.User) {
	if !user.IsChatting() {
		c.reply(t.ev.ChatID, "not_chatting", models.MenuIdle)
		return
	}
	c.Out.Send(models.CopyTo(*user.PartnerID, t.ev.ChatID, t.ev.MessageID))
}

func (c *Controller) report(t *turn, user *models.User) {
	if user.PartnerID == nil {
		c.reply(t.ev.ChatID, "report_not_chatting", models.MenuIdle)
		return
	}
	t.log.Info("user reported", "reported_id", *user.PartnerID)
	c.Out.Send(c.Complaints.HandleComplaint(t.ev.UserID, *user.PartnerID))
	c.reply(t.ev.ChatID, "report_sent", models.MenuNone)
}

func (c *Controller) handleAdmin(t *turn) {
	if err := c.Complaints.Authorize(t.ev.UserID); err != nil {
		t.log.Debug("admin command ignored", "error", err)
		return
	}

	if t.ev.Kind == models.EventStats {
		counts, err := c.Pairing.CountByStatus(t.ctx)
		if err != nil {
			t.log.Error("failed to count users", "error", err)
			return
		}
		report := c.Complaints.StatsReport(counts)
		report.ChatID = t.ev.ChatID
		c.Out.Send(report)
		return
	}

	usageKey, doneKey, noticeKey := "admin_usage_mute", "admin_muted", "muted_notice"
	apply := c.Pairing.Mute
	if t.ev.Kind == models.EventUnmute {
		usageKey, doneKey, noticeKey = "admin_usage_unmute", "admin_unmuted", "unmuted_notice"
		apply = c.Pairing.Unmute
	}

	targetID, err := complaint.ParseTarget(t.ev.Args)
	if err != nil {
		c.reply(t.ev.ChatID, usageKey, models.MenuNone)
		return
	}
	if err := apply(t.ctx, targetID); err != nil {
		t.log.Error("moderation failed", "target_id", targetID, "error", err)
		return
	}
	t.log.Info("moderation applied", "target_id", targetID)

	c.Out.Send(models.TextTo(t.ev.ChatID, c.Localizer.Format(c.Lang, doneKey, targetID), models.MenuNone))
	menu := models.MenuNone
	if t.ev.Kind == models.EventUnmute {
		menu = models.MenuIdle
	}
	c.reply(targetID, noticeKey, menu)
}

// NotifyExpired tells users their search timed out. It matches chathub.ExpiredHandler.
func (c *Controller) NotifyExpired(_ context.Context, userIDs []int64) {
	for _, id := range userIDs {
		c.reply(id, "search_timeout", models.MenuIdle)
	}
}

// AnnounceOnline tells the administrator the bot is running.
func (c *Controller) AnnounceOnline(firstName, username string) {
	if c.Complaints.AdminID == 0 {
		return
	}
	c.Out.Send(c.Complaints.OnlineNotice(firstName, username))
}
