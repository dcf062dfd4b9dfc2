package telegram

import (
	"strings"

	"randomchat/backend/internal/models"
)

// handleGender processes "/gender male|female|random". The preference is
// stored only; pairing ignores it.
func (c *Controller) handleGender(t *turn) {
	gender, ok := models.ParseGender(strings.ToLower(strings.TrimSpace(t.ev.Args)))
	if !ok {
		c.reply(t.ev.ChatID, "gender_invalid", models.MenuNone)
		return
	}

	if err := c.Pairing.SetPreference(t.ctx, t.ev.UserID, gender); err != nil {
		t.log.Error("failed to save gender preference", "error", err)
		return
	}
	c.Out.Send(models.TextTo(t.ev.ChatID, c.Localizer.Format(c.Lang, "gender_saved", gender), models.MenuNone))
}
