// Package complaint routes user reports to the administrator and guards the
// admin-only commands.
package complaint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/models"
)

var (
	ErrNotAdmin      = errors.New("caller is not the administrator")
	ErrInvalidTarget = errors.New("invalid target user id")
)

// Service handles reports and admin authorization.
type Service struct {
	AdminID   int64
	Localizer *localization.Localizer
	Lang      string
}

// NewService creates a new complaint service.
func NewService(adminID int64, loc *localization.Localizer, lang string) *Service {
	return &Service{AdminID: adminID, Localizer: loc, Lang: lang}
}

// IsAdmin reports whether userID is the configured administrator.
func (s *Service) IsAdmin(userID int64) bool {
	return s.AdminID != 0 && userID == s.AdminID
}

// Authorize returns ErrNotAdmin unless userID is the administrator.
func (s *Service) Authorize(userID int64) error {
	if !s.IsAdmin(userID) {
		return ErrNotAdmin
	}
	return nil
}

// ParseTarget reads the user id argument of "/mute 123".
func ParseTarget(args string) (int64, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, ErrInvalidTarget
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, fields[0])
	}
	return id, nil
}

// HandleComplaint builds the report sent to the administrator.
func (s *Service) HandleComplaint(reporterID, reportedID int64) models.OutboundMessage {
	text := s.Localizer.Format(s.Lang, "report_admin", reporterID, reporterID, reportedID, reportedID)
	msg := models.TextTo(s.AdminID, text, models.MenuNone)
	msg.Markdown = true
	return msg
}

// StatsReport formats the counters for the administrator.
func (s *Service) StatsReport(c models.StatusCounts) models.OutboundMessage {
	text := s.Localizer.Format(s.Lang, "admin_stats", c.Total, c.Idle, c.Chatting, c.Searching, c.Muted)
	msg := models.TextTo(s.AdminID, text, models.MenuNone)
	msg.Markdown = true
	return msg
}

// OnlineNotice tells the administrator the bot is up.
func (s *Service) OnlineNotice(firstName, username string) models.OutboundMessage {
	msg := models.TextTo(s.AdminID, s.Localizer.Format(s.Lang, "admin_online", firstName, username), models.MenuNone)
	msg.Markdown = true
	return msg
}
