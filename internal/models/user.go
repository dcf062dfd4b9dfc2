package models

import "time"

// UserStatus is the conversational state of a user.
type UserStatus string

const (
	StatusIdle      UserStatus = "idle"
	StatusSearching UserStatus = "searching"
	StatusChatting  UserStatus = "chatting"
	// StatusMuted is never stored in the status column; it is reported by
	// User.State when the moderation flag is set.
	StatusMuted UserStatus = "muted"
)

// Gender is a stored matching preference. Pairing does not consult it yet.
type Gender string

const (
	GenderUnset  Gender = "unset"
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderRandom Gender = "random"
)

// ParseGender maps user input to a Gender.
func ParseGender(s string) (Gender, bool) {
	switch Gender(s) {
	case GenderMale, GenderFemale, GenderRandom:
		return Gender(s), true
	}
	return "", false
}

// User is the single mutable record kept per Telegram user.
// PartnerID is a weak reference to another User; it is cleared on disconnect
// and never cascades.
type User struct {
	// ID is the Telegram user id.
	ID        int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Status    UserStatus `gorm:"type:varchar(16);not null;index:idx_users_status_queued,priority:1" json:"status"`
	PartnerID *int64     `gorm:"index" json:"partner_id,omitempty"`
	// Muted is the canonical moderation flag. Muting keeps Status untouched.
	Muted  bool   `gorm:"not null;default:false" json:"muted"`
	Gender Gender `gorm:"type:varchar(16);not null" json:"gender"`
	// QueuedAt is set while searching and orders candidates first-in first-out.
	QueuedAt  *time.Time `gorm:"index:idx_users_status_queued,priority:2" json:"queued_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewUser returns the defaults used on first contact.
func NewUser(id int64) *User {
	return &User{ID: id, Status: StatusIdle, Gender: GenderUnset}
}

// State is the status shown to users and admins: MUTED overrides the stored status.
func (u *User) State() UserStatus {
	if u.Muted {
		return StatusMuted
	}
	return u.Status
}

// IsChatting reports whether the user has a live partner link.
func (u *User) IsChatting() bool {
	return u.Status == StatusChatting && u.PartnerID != nil
}

// StatusCounts is the aggregate returned by the stats queries.
type StatusCounts struct {
	Total     int64 `json:"total"`
	Idle      int64 `json:"idle"`
	Searching int64 `json:"searching"`
	Chatting  int64 `json:"chatting"`
	Muted     int64 `json:"muted"`
}

// ByStatus returns the counts keyed by state.
func (c StatusCounts) ByStatus() map[UserStatus]int64 {
	return map[UserStatus]int64{
		StatusIdle:      c.Idle,
		StatusSearching: c.Searching,
		StatusChatting:  c.Chatting,
		StatusMuted:     c.Muted,
	}
}
