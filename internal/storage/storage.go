package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserMuted    = errors.New("user is muted")
	// ErrAlreadyPaired rejects a pairing that would overwrite a live partner link.
	ErrAlreadyPaired = errors.New("user already has a partner")
	// ErrPairingConflict means a row changed between candidate selection and update.
	ErrPairingConflict = errors.New("pairing candidate changed concurrently")
)

// Storage is the persistent user-status table.
type Storage interface {
	EnsureUser(ctx context.Context, userID int64) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)

	PairOrQueue(ctx context.Context, userID int64, now time.Time) (partnerID int64, paired bool, err error)
	Disconnect(ctx context.Context, userID int64) (partnerID int64, hadPartner bool, err error)
	ExpireSearching(ctx context.Context, queuedBefore time.Time) ([]int64, error)

	SetMuted(ctx context.Context, userID int64, muted bool) error
	SetGender(ctx context.Context, userID int64, gender models.Gender) error

	CountByStatus(ctx context.Context) (models.StatusCounts, error)
	Ping(ctx context.Context) error
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	// StatsTTL bounds how long cached status counts are served.
	StatsTTL time.Duration

	log *logger.Logger
}

// NewStorageService Constructor. rdb may be nil, which disables the stats cache.
func NewStorageService(db *gorm.DB, rdb *redis.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		DB:       db,
		Redis:    rdb,
		StatsTTL: 10 * time.Second,
		log:      log.With("service", "storage"),
	}
}

// EnsureUser inserts the default record on first contact and is a no-op afterwards.
func (s *Service) EnsureUser(ctx context.Context, userID int64) error {
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models.NewUser(userID))
	if result.Error != nil {
		return fmt.Errorf("ensure user %d: %w", userID, result.Error)
	}
	if result.RowsAffected > 0 {
		s.log.Info("new user saved", "user_id", userID)
		s.invalidateCounts(ctx)
	}
	return nil
}

// GetUser is a point lookup by Telegram id.
func (s *Service) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, mapNotFound(err, userID)
	}
	return &user, nil
}

// PairOrQueue links userID with the longest-waiting searching user, or queues
// userID when nobody is waiting. Both sides of a pairing are written in one
// transaction with conditional updates, so a candidate is never double-booked.
func (s *Service) PairOrQueue(ctx context.Context, userID int64, now time.Time) (int64, bool, error) {
	var (
		partnerID int64
		paired    bool
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return mapNotFound(err, userID)
		}
		if user.Muted {
			return ErrUserMuted
		}
		if user.IsChatting() {
			return ErrAlreadyPaired
		}

		var candidate models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ? AND id <> ? AND muted = ?", models.StatusSearching, userID, false).
			Order("queued_at ASC").
			Order("id ASC").
			Take(&candidate).Error

		switch {
		case err == nil:
			res := tx.Model(&models.User{}).
				Where("id = ? AND status = ? AND muted = ?", candidate.ID, models.StatusSearching, false).
				Updates(map[string]interface{}{
					"status":     models.StatusChatting,
					"partner_id": userID,
					"queued_at":  nil,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return ErrPairingConflict
			}

			res = tx.Model(&models.User{}).
				Where("id = ? AND muted = ? AND partner_id IS NULL", userID, false).
				Updates(map[string]interface{}{
					"status":     models.StatusChatting,
					"partner_id": candidate.ID,
					"queued_at":  nil,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return ErrPairingConflict
			}

			partnerID, paired = candidate.ID, true
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			queuedAt := now.UTC()
			if user.Status == models.StatusSearching && user.QueuedAt != nil {
				// Repeated searches keep their place in line.
				queuedAt = *user.QueuedAt
			}
			return tx.Model(&models.User{}).
				Where("id = ?", userID).
				Updates(map[string]interface{}{
					"status":     models.StatusSearching,
					"partner_id": nil,
					"queued_at":  queuedAt,
				}).Error

		default:
			return err
		}
	})
	if err != nil {
		return 0, false, fmt.Errorf("pair user %d: %w", userID, err)
	}

	s.invalidateCounts(ctx)
	return partnerID, paired, nil
}

// Disconnect clears the partner link on both sides and returns both users to IDLE.
// The former partner is reported only when the link was mutual. A second call
// finds no partner and reports none.
func (s *Service) Disconnect(ctx context.Context, userID int64) (int64, bool, error) {
	var (
		partnerID  int64
		hadPartner bool
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if user.PartnerID != nil {
			res := tx.Model(&models.User{}).
				Where("id = ? AND partner_id = ?", *user.PartnerID, userID).
				Updates(map[string]interface{}{
					"status":     models.StatusIdle,
					"partner_id": nil,
					"queued_at":  nil,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				partnerID, hadPartner = *user.PartnerID, true
			} else {
				s.log.Warn("partner link was one-sided", "user_id", userID, "partner_id", *user.PartnerID)
			}
		}

		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"status":     models.StatusIdle,
				"partner_id": nil,
				"queued_at":  nil,
			}).Error
	})
	if err != nil {
		return 0, false, fmt.Errorf("disconnect user %d: %w", userID, err)
	}

	s.invalidateCounts(ctx)
	return partnerID, hadPartner, nil
}

// ExpireSearching returns users queued before the cutoff to IDLE and reports their ids.
// Muted users are left alone; they only ever receive the block notice.
func (s *Service) ExpireSearching(ctx context.Context, queuedBefore time.Time) ([]int64, error) {
	var expired []int64

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).
			Where("status = ? AND muted = ? AND queued_at < ?", models.StatusSearching, false, queuedBefore.UTC()).
			Order("queued_at ASC").
			Pluck("id", &expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		return tx.Model(&models.User{}).
			Where("id IN ? AND status = ? AND muted = ?", expired, models.StatusSearching, false).
			Updates(map[string]interface{}{
				"status":    models.StatusIdle,
				"queued_at": nil,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("expire searching users: %w", err)
	}

	if len(expired) > 0 {
		s.invalidateCounts(ctx)
	}
	return expired, nil
}

// SetMuted sets the moderation flag, creating the record if the user was never seen.
// The conversational status and partner link are left as they are.
func (s *Service) SetMuted(ctx context.Context, userID int64, muted bool) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(models.NewUser(userID)).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).Update("muted", muted).Error
	})
	if err != nil {
		return fmt.Errorf("set muted=%t for user %d: %w", muted, userID, err)
	}

	s.invalidateCounts(ctx)
	return nil
}

// SetGender stores the matching preference.
func (s *Service) SetGender(ctx context.Context, userID int64, gender models.Gender) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("gender", gender)
	if res.Error != nil {
		return fmt.Errorf("set gender for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set gender for user %d: %w", userID, ErrUserNotFound)
	}
	return nil
}

// CountByStatus aggregates users by state. Muted users are counted as MUTED only.
func (s *Service) CountByStatus(ctx context.Context) (models.StatusCounts, error) {
	if counts, ok := s.cachedCounts(ctx); ok {
		return counts, nil
	}
	version, versionOK := s.countsVersion(ctx)

	var rows []struct {
		Status models.UserStatus
		Total  int64
	}
	if err := s.DB.WithContext(ctx).Model(&models.User{}).
		Select("status, count(*) AS total").
		Where("muted = ?", false).
		Group("status").
		Scan(&rows).Error; err != nil {
		return models.StatusCounts{}, fmt.Errorf("count users by status: %w", err)
	}

	var counts models.StatusCounts
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("muted = ?", true).Count(&counts.Muted).Error; err != nil {
		return models.StatusCounts{}, fmt.Errorf("count muted users: %w", err)
	}

	for _, r := range rows {
		switch r.Status {
		case models.StatusIdle:
			counts.Idle += r.Total
		case models.StatusSearching:
			counts.Searching += r.Total
		case models.StatusChatting:
			counts.Chatting += r.Total
		default:
			s.log.Warn("unknown status in users table", "status", r.Status, "count", r.Total)
		}
	}
	counts.Total = counts.Idle + counts.Searching + counts.Chatting + counts.Muted

	if versionOK {
		s.cacheCounts(ctx, counts, version)
	}
	return counts, nil
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func mapNotFound(err error, userID int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	return err
}
