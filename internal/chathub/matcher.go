// Package chathub owns the pairing state machine. MatcherService is the only
// writer of partner links: every state-changing request is applied by a single
// goroutine, so selecting a candidate and linking both users is indivisible
// relative to any other pairing attempt.
package chathub

import (
	"context"
	"errors"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/storage"
)

const maxPairAttempts = 3

type opKind int

const (
	opPair opKind = iota
	opDisconnect
	opMute
	opUnmute
)

func (o opKind) String() string {
	switch o {
	case opPair:
		return "pair"
	case opDisconnect:
		return "disconnect"
	case opMute:
		return "mute"
	case opUnmute:
		return "unmute"
	}
	return "unknown"
}

type request struct {
	ctx    context.Context
	op     opKind
	userID int64
	result chan result
}

type result struct {
	partnerID int64
	ok        bool
	err       error
}

// ExpiredHandler receives users whose search timed out. It runs on the matcher
// goroutine and must not block.
type ExpiredHandler func(ctx context.Context, userIDs []int64)

// MatcherService serializes pairing, disconnect and moderation writes.
type MatcherService struct {
	Storage storage.Storage

	// SearchTimeout returns queued users to IDLE after this long. Zero disables it.
	SearchTimeout time.Duration
	SweepInterval time.Duration
	OnExpired     ExpiredHandler
	Now           func() time.Time

	requests chan request
	log      *logger.Logger
}

// NewMatcherService creates a matcher over s. Call Run before using it.
func NewMatcherService(s storage.Storage, log *logger.Logger) *MatcherService {
	if log == nil {
		log = logger.Nop()
	}
	return &MatcherService{
		Storage:       s,
		SweepInterval: 30 * time.Second,
		Now:           time.Now,
		requests:      make(chan request, 64),
		log:           log.With("service", "matcher"),
	}
}

// Run applies queued requests until ctx is cancelled.
func (m *MatcherService) Run(ctx context.Context) error {
	m.log.Info("matcher started", "search_timeout", m.SearchTimeout.String())

	var sweep <-chan time.Time
	if m.SearchTimeout > 0 && m.SweepInterval > 0 {
		ticker := time.NewTicker(m.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			m.log.Info("matcher stopped")
			return nil
		case req := <-m.requests:
			req.result <- m.apply(req)
		case <-sweep:
			m.expireSearching(ctx)
		}
	}
}

func (m *MatcherService) apply(req request) result {
	if err := req.ctx.Err(); err != nil {
		return result{err: err}
	}

	switch req.op {
	case opPair:
		var err error
		for attempt := 1; attempt <= maxPairAttempts; attempt++ {
			var res result
			res.partnerID, res.ok, err = m.Storage.PairOrQueue(req.ctx, req.userID, m.Now())
			if !errors.Is(err, storage.ErrPairingConflict) {
				res.err = err
				if err == nil && res.ok {
					m.log.Info("match found", "user_id", req.userID, "partner_id", res.partnerID)
				}
				return res
			}
			m.log.Warn("pairing conflict, retrying", "user_id", req.userID, "attempt", attempt)
		}
		return result{err: err}

	case opDisconnect:
		partnerID, ok, err := m.Storage.Disconnect(req.ctx, req.userID)
		return result{partnerID: partnerID, ok: ok, err: err}

	case opMute, opUnmute:
		return result{err: m.Storage.SetMuted(req.ctx, req.userID, req.op == opMute)}
	}

	return result{err: errors.New("unknown matcher operation " + req.op.String())}
}

func (m *MatcherService) expireSearching(ctx context.Context) {
	expired, err := m.Storage.ExpireSearching(ctx, m.Now().Add(-m.SearchTimeout))
	if err != nil {
		m.log.Error("search expiry failed", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}
	m.log.Info("search timed out", "users", len(expired))
	if m.OnExpired != nil {
		m.OnExpired(ctx, expired)
	}
}

func (m *MatcherService) submit(ctx context.Context, op opKind, userID int64) result {
	req := request{ctx: ctx, op: op, userID: userID, result: make(chan result, 1)}

	select {
	case m.requests <- req:
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}

	select {
	case res := <-req.result:
		return res
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

// FindAndPair matches userID with a waiting user, or queues userID.
// It returns the partner id and true when a match was made.
func (m *MatcherService) FindAndPair(ctx context.Context, userID int64) (int64, bool, error) {
	res := m.submit(ctx, opPair, userID)
	return res.partnerID, res.ok, res.err
}

// Disconnect ends the user's chat or search. It returns the former partner, if any.
func (m *MatcherService) Disconnect(ctx context.Context, userID int64) (int64, bool, error) {
	res := m.submit(ctx, opDisconnect, userID)
	return res.partnerID, res.ok, res.err
}

// Mute sets the moderation flag. An active partner link is left in place.
func (m *MatcherService) Mute(ctx context.Context, userID int64) error {
	return m.submit(ctx, opMute, userID).err
}

// Unmute clears the moderation flag.
func (m *MatcherService) Unmute(ctx context.Context, userID int64) error {
	return m.submit(ctx, opUnmute, userID).err
}

// EnsureUser creates the user record on first contact. Failures are logged only.
func (m *MatcherService) EnsureUser(ctx context.Context, userID int64) {
	if err := m.Storage.EnsureUser(ctx, userID); err != nil {
		m.log.Error("failed to ensure user", "user_id", userID, "error", err)
	}
}

// GetUser reads a user without going through the request queue.
func (m *MatcherService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return m.Storage.GetUser(ctx, userID)
}

// SetPreference stores the gender preference. It has no effect on pairing.
func (m *MatcherService) SetPreference(ctx context.Context, userID int64, gender models.Gender) error {
	return m.Storage.SetGender(ctx, userID, gender)
}

// CountByStatus reports how many users are in each state.
func (m *MatcherService) CountByStatus(ctx context.Context) (models.StatusCounts, error) {
	return m.Storage.CountByStatus(ctx)
}
