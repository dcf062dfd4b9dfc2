package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"randomchat/backend/internal/chathub"
	"randomchat/backend/internal/complaint"
	"randomchat/backend/internal/localization"
	"randomchat/backend/internal/models"
	"randomchat/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAdminID int64 = 999

type recordingOutbox struct {
	mu   sync.Mutex
	msgs []models.OutboundMessage
}

func (r *recordingOutbox) Send(msg models.OutboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingOutbox) to(chatID int64) []models.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OutboundMessage
	for _, m := range r.msgs {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (r *recordingOutbox) textsTo(chatID int64) []string {
	var out []string
	for _, m := range r.to(chatID) {
		if m.Kind == models.OutboundText {
			out = append(out, m.Text)
		}
	}
	return out
}

func (r *recordingOutbox) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

type controllerFixture struct {
	ctrl    *Controller
	matcher *chathub.MatcherService
	out     *recordingOutbox
	loc     *localization.Localizer
}

func (f *controllerFixture) en(key string) string {
	return f.loc.GetString("en", key)
}

func (f *controllerFixture) handle(kind models.EventKind, userID int64) {
	f.ctrl.Handle(context.Background(), models.Event{Kind: kind, UserID: userID, ChatID: userID})
}

func (f *controllerFixture) user(t *testing.T, id int64) *models.User {
	t.Helper()
	u, err := f.matcher.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func newLocalizer(t *testing.T) *localization.Localizer {
	t.Helper()
	loc, err := localization.NewLocalizer()
	require.NoError(t, err)
	return loc
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	db, err := storage.OpenDB("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	matcher := chathub.NewMatcherService(storage.NewStorageService(db, nil, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = matcher.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	loc := newLocalizer(t)
	out := &recordingOutbox{}
	ctrl := NewController(matcher, out, complaint.NewService(testAdminID, loc, "en"), loc, "en", nil)
	return &controllerFixture{ctrl: ctrl, matcher: matcher, out: out, loc: loc}
}

func TestController_StartQueuesLoneUser(t *testing.T) {
	f := newControllerFixture(t)

	f.handle(models.EventStart, 1)

	u := f.user(t, 1)
	assert.Equal(t, models.StatusSearching, u.Status)
	assert.Nil(t, u.PartnerID)
	assert.Equal(t, []string{f.en("welcome"), f.en("searching")}, f.out.textsTo(1))
	assert.True(t, f.out.to(1)[0].Markdown)
}

func TestController_SecondSearchPairsBoth(t *testing.T) {
	f := newControllerFixture(t)

	f.handle(models.EventSearch, 1)
	f.handle(models.EventSearch, 2)

	a, b := f.user(t, 1), f.user(t, 2)
	require.True(t, a.IsChatting())
	require.True(t, b.IsChatting())
	assert.Equal(t, int64(2), *a.PartnerID)
	assert.Equal(t, int64(1), *b.PartnerID)

	assert.Equal(t, []string{f.en("searching"), f.en("matched")}, f.out.textsTo(1))
	assert.Equal(t, []string{f.en("matched")}, f.out.textsTo(2))
	assert.Equal(t, models.MenuChatting, f.out.to(2)[0].Menu)
}

func TestController_SearchWhileChattingIsRejected(t *testing.T) {
	f := newControllerFixture(t)
	f.handle(models.EventSearch, 1)
	f.handle(models.EventSearch, 2)
	f.out.reset()

	f.handle(models.EventSearch, 1)

	assert.Equal(t, []string{f.en("already_chatting")}, f.out.textsTo(1))
	assert.Empty(t, f.out.to(2))
	assert.Equal(t, int64(2), *f.user(t, 1).PartnerID)
}

func TestController_StopNotifiesPartner(t *testing.T) {
	f := newControllerFixture(t)
	f.handle(models.EventSearch, 1)
	f.handle(models.EventSearch, 2)
	f.out.reset()

	f.handle(models.EventStop, 1)

	for _, id := range []int64{1, 2} {
		u := f.user(t, id)
		assert.Equal(t, models.StatusIdle, u.Status)
		assert.Nil(t, u.PartnerID)
	}
	assert.Equal(t, []string{f.en("stopped")}, f.out.textsTo(1))
	assert.Equal(t, []string{f.en("partner_left")}, f.out.textsTo(2))
}

func TestController_StopWhenIdleOnlyConfirms(t *testing.T) {
	f := newControllerFixture(t)

	f.handle(models.EventStop, 1)

	assert.Equal(t, []string{f.en("stopped")}, f.out.textsTo(1))
	assert.Equal(t, models.StatusIdle, f.user(t, 1).Status)
}

func TestController_NextIsSilentAndRequeues(t *testing.T) {
	f := newControllerFixture(t)
	f.handle(models.EventSearch, 1)
	f.handle(models.EventSearch, 2)
	f.out.reset()

	f.handle(models.EventNext, 1)

	assert.Empty(t, f.out.to(2), "the partner gets no message on next")
	assert.Equal(t, models.StatusIdle, f.user(t, 2).Status)
	assert.Equal(t, models.StatusSearching, f.user(t, 1).Status)
	assert.Equal(t, []string{f.en("next_searching"), f.en("searching")}, f.out.textsTo(1))
}

func TestController_NextFindsWaitingUser(t *testing.T) {
	f := newControllerFixture(t)
	f.handle(models.EventSearch, 1)
	f.handle(models.EventSearch, 2)
	f.handle(models.EventSearch, 3)
	f.out.reset()

	f.handle(models.EventNext, 1)

	assert.Equal(t, int64(3), *f.user(t, 1).PartnerID)
	assert.Equal(t, []string{f.en("matched")}, f.out.textsTo(3))
	assert.Empty(t, f.out.to(2))
}

func TestController_RelayCopiesToPartner(t *testing.T) {
	f := newControllerFixture(t)
	f.handle(models.EventSearch, 1)
	f.handle(models.EventSearch, 2)
	f.out.reset()

	f.ctrl.Handle(context.Background(), models.Event{Kind: models.EventMessage, UserID: 1, ChatID: 1, MessageID: 77})

	got := f.out.to(2)
	require.Len(t, got, 1)
	assert.Equal(t, models.CopyTo(2, 1, 77), got[0])
	assert.Empty(t, f.out.to(1))
}

func TestController_RelayWithoutPartnerGuides(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Handle(context.Background(), models.Event{Kind: models.EventMessage, UserID: 1, ChatID: 1, MessageID: 5})

	assert.Equal(t, []string{f.en("not_chatting")}, f.out.textsTo(1))
}

func TestController_ReportGoesToAdmin(t *testing.T) {
	f := newControllerFixture(t)
	f.handle(models.EventSearch, 1)
	f.handle(models.EventSearch, 2)
	f.out.reset()

	f.handle(models.EventReport, 2)

	admin := f.out.to(testAdminID)
	require.Len(t, admin, 1)
	assert.Contains(t, admin[0].Text, "tg://user?id=2")
	assert.Contains(t, admin[0].Text, "tg://user?id=1")
	assert.Equal(t, []string{f.en("report_sent")}, f.out.textsTo(2))
	assert.Empty(t, f.out.to(1))
}

func TestController_ReportWithoutPartner(t *testing.T) {
	f := newControllerFixture(t)

	f.handle(models.EventReport, 1)

	assert.Equal(t, []string{f.en("report_not_chatting")}, f.out.textsTo(1))
	assert.Empty(t, f.out.to(testAdminID))
}

func TestController_FeedbackButtons(t *testing.T) {
	f := newControllerFixture(t)

	f.handle(models.EventLike, 1)
	f.handle(models.EventDislike, 1)

	assert.Equal(t, []string{f.en("like"), f.en("dislike")}, f.out.textsTo(1))
}

func TestController_AdminMuteBlocksUser(t *testing.T) {
	f := newControllerFixture(t)
	f.handle(models.EventStart, 12345)
	f.out.reset()

	f.ctrl.Handle(context.Background(), models.Event{Kind: models.EventMute, UserID: testAdminID, ChatID: testAdminID, Args: "12345"})

	assert.Equal(t, models.StatusMuted, f.user(t, 12345).State())
	assert.Equal(t, []string{"🔇 User 12345 has been muted."}, f.out.textsTo(testAdminID))
	assert.Equal(t, []string{f.en("muted_notice")}, f.out.textsTo(12345))

	f.out.reset()
	before := f.user(t, 12345)
	f.handle(models.EventStart, 12345)

	assert.Equal(t, []string{f.en("blocked")}, f.out.textsTo(12345))
	after := f.user(t, 12345)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.PartnerID, after.PartnerID)
}

func TestController_MutedUserIsBlockedEverywhere(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.matcher.Mute(context.Background(), 5))

	for _, kind := range []models.EventKind{models.EventSearch, models.EventStop, models.EventNext, models.EventMessage, models.EventReport} {
		f.out.reset()
		f.handle(kind, 5)
		assert.Equal(t, []string{f.en("blocked")}, f.out.textsTo(5), "event %s", kind)
	}
}

func TestController_AdminUnmute(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.matcher.Mute(context.Background(), 7))

	f.ctrl.Handle(context.Background(), models.Event{Kind: models.EventUnmute, UserID: testAdminID, ChatID: testAdminID, Args: "7"})

	assert.False(t, f.user(t, 7).Muted)
	assert.Equal(t, []string{f.en("unmuted_notice")}, f.out.textsTo(7))

	f.out.reset()
	f.handle(models.EventSearch, 7)
	assert.Equal(t, []string{f.en("searching")}, f.out.textsTo(7))
}

func TestController_AdminCommandsRequireAdmin(t *testing.T) {
	f := newControllerFixture(t)
	f.handle(models.EventStart, 12345)
	f.out.reset()

	for _, kind := range []models.EventKind{models.EventMute, models.EventUnmute, models.EventStats} {
		f.ctrl.Handle(context.Background(), models.Event{Kind: kind, UserID: 1, ChatID: 1, Args: "12345"})
	}

	assert.Empty(t, f.out.msgs)
	assert.False(t, f.user(t, 12345).Muted)
}

func TestController_AdminMuteUsage(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Handle(context.Background(), models.Event{Kind: models.EventMute, UserID: testAdminID, ChatID: testAdminID, Args: "abc"})

	assert.Equal(t, []string{f.en("admin_usage_mute")}, f.out.textsTo(testAdminID))
}

func TestController_AdminStats(t *testing.T) {
	f := newControllerFixture(t)
	f.handle(models.EventSearch, 1)
	f.handle(models.EventSearch, 2)
	f.handle(models.EventSearch, 3)
	require.NoError(t, f.matcher.Mute(context.Background(), 4))
	f.out.reset()

	f.ctrl.Handle(context.Background(), models.Event{Kind: models.EventStats, UserID: testAdminID, ChatID: testAdminID})

	texts := f.out.textsTo(testAdminID)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Total users: 4")
	assert.Contains(t, texts[0], "Chatting: 2")
	assert.Contains(t, texts[0], "Searching: 1")
	assert.Contains(t, texts[0], "Muted: 1")
}

func TestController_GenderPreference(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.Handle(context.Background(), models.Event{Kind: models.EventGender, UserID: 1, ChatID: 1, Args: "Female"})
	assert.Equal(t, models.GenderFemale, f.user(t, 1).Gender)
	assert.Equal(t, []string{"✅ Preference saved: female"}, f.out.textsTo(1))

	f.out.reset()
	f.ctrl.Handle(context.Background(), models.Event{Kind: models.EventGender, UserID: 1, ChatID: 1, Args: "robot"})
	assert.Equal(t, []string{f.en("gender_invalid")}, f.out.textsTo(1))
	assert.Equal(t, models.GenderFemale, f.user(t, 1).Gender)
}

func TestController_NotifyExpired(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.NotifyExpired(context.Background(), []int64{3, 4})

	assert.Equal(t, []string{f.en("search_timeout")}, f.out.textsTo(3))
	assert.Equal(t, []string{f.en("search_timeout")}, f.out.textsTo(4))
}

func TestController_AnnounceOnline(t *testing.T) {
	f := newControllerFixture(t)

	f.ctrl.AnnounceOnline("Random Chat", "randomchat_bot")

	texts := f.out.textsTo(testAdminID)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "@randomchat_bot")
}

// MockPairing is a testify/mock implementation of PairingService.
type MockPairing struct {
	mock.Mock
}

func (m *MockPairing) EnsureUser(ctx context.Context, userID int64) {
	m.Called(ctx, userID)
}

func (m *MockPairing) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockPairing) FindAndPair(ctx context.Context, userID int64) (int64, bool, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockPairing) Disconnect(ctx context.Context, userID int64) (int64, bool, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockPairing) Mute(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockPairing) Unmute(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockPairing) SetPreference(ctx context.Context, userID int64, gender models.Gender) error {
	return m.Called(ctx, userID, gender).Error(0)
}

func (m *MockPairing) CountByStatus(ctx context.Context) (models.StatusCounts, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.StatusCounts), args.Error(1)
}

func TestController_StorageFaultsAreSilent(t *testing.T) {
	loc := newLocalizer(t)
	boom := errors.New("connection reset")

	tests := []struct {
		name  string
		kind  models.EventKind
		setup func(p *MockPairing)
	}{
		{
			name: "user lookup fails",
			kind: models.EventSearch,
			setup: func(p *MockPairing) {
				p.On("GetUser", mock.Anything, int64(1)).Return(nil, boom)
			},
		},
		{
			name: "pairing fails",
			kind: models.EventSearch,
			setup: func(p *MockPairing) {
				p.On("GetUser", mock.Anything, int64(1)).Return(models.NewUser(1), nil)
				p.On("FindAndPair", mock.Anything, int64(1)).Return(int64(0), false, boom)
			},
		},
		{
			name: "disconnect fails",
			kind: models.EventStop,
			setup: func(p *MockPairing) {
				p.On("GetUser", mock.Anything, int64(1)).Return(models.NewUser(1), nil)
				p.On("Disconnect", mock.Anything, int64(1)).Return(int64(0), false, boom)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockPairing)
			p.On("EnsureUser", mock.Anything, int64(1)).Return()
			tt.setup(p)
			out := &recordingOutbox{}
			ctrl := NewController(p, out, complaint.NewService(testAdminID, loc, "en"), loc, "en", nil)

			assert.NotPanics(t, func() {
				ctrl.Handle(context.Background(), models.Event{Kind: tt.kind, UserID: 1, ChatID: 1})
			})
			assert.Empty(t, out.msgs)
			p.AssertExpectations(t)
		})
	}
}

func TestController_MuteFaultSendsNothing(t *testing.T) {
	loc := newLocalizer(t)
	p := new(MockPairing)
	p.On("Mute", mock.Anything, int64(42)).Return(errors.New("db down"))
	out := &recordingOutbox{}
	ctrl := NewController(p, out, complaint.NewService(testAdminID, loc, "en"), loc, "en", nil)

	ctrl.Handle(context.Background(), models.Event{Kind: models.EventMute, UserID: testAdminID, ChatID: testAdminID, Args: "42"})

	assert.Empty(t, out.msgs)
	p.AssertExpectations(t)
}
