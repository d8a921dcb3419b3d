package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clashsync/internal/config"
	"github.com/clashsync/internal/domain"
)

// memStore is an in-memory implementation of every store interface
type memStore struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	battles   map[string]*domain.Battle
	records   map[string]*domain.BattleRequestRecord
	mods      map[string]*domain.ModificationRequest
	threads   map[string]*domain.Thread
	messages  map[string][]domain.Message
	channels  map[string]*domain.Channel
	chat      map[string][]domain.ChatMessage
	events    []domain.DiamondAward
	createdTh int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*domain.User),
		battles:  make(map[string]*domain.Battle),
		records:  make(map[string]*domain.BattleRequestRecord),
		mods:     make(map[string]*domain.ModificationRequest),
		threads:  make(map[string]*domain.Thread),
		messages: make(map[string][]domain.Message),
		channels: make(map[string]*domain.Channel),
		chat:     make(map[string][]domain.ChatMessage),
	}
}

func (m *memStore) addUser(id, name string, role domain.Role) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &domain.User{ID: id, FullName: name, Email: id + "@example.com", Role: role}
	m.users[id] = u
	cp := *u
	return &cp
}

func (m *memStore) user(id string) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.users[id]
	cp.BlockedUsers = slices.Clone(cp.BlockedUsers)
	return &cp
}

// UserStore

func (m *memStore) UpsertUser(_ context.Context, user *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[user.ID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *user
	cp.CreatedAt = time.Now()
	m.users[user.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateProfile(_ context.Context, id string, update domain.ProfileUpdate) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if update.FullName != nil {
		u.FullName = *update.FullName
	}
	if update.Phone != nil {
		u.Phone = *update.Phone
	}
	if update.TikTokUsername != nil {
		u.TikTokUsername = *update.TikTokUsername
	}
	if update.AvatarURL != nil {
		u.AvatarURL = *update.AvatarURL
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) SearchUsers(_ context.Context, viewerID, prefix string, limit int) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix = strings.ToLower(prefix)
	viewer := m.users[viewerID]
	var out []domain.User
	for _, u := range m.users {
		if u.ID == viewerID || u.HasBlocked(viewerID) || (viewer != nil && viewer.HasBlocked(u.ID)) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(u.FullName), prefix) ||
			strings.HasPrefix(strings.ToLower(u.TikTokUsername), prefix) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SetBlocked(_ context.Context, userID, otherID string, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.BlockedUsers = setMember(u.BlockedUsers, otherID, blocked)
	return nil
}

func (m *memStore) SetMuted(_ context.Context, userID, threadID string, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.MutedThreads = setMember(u.MutedThreads, threadID, muted)
	return nil
}

func setMember(list []string, value string, present bool) []string {
	list = slices.DeleteFunc(list, func(s string) bool { return s == value })
	if present {
		list = append(list, value)
	}
	return list
}

func (m *memStore) AdminUpdateUser(_ context.Context, id string, update domain.AdminUserUpdate) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Role = update.Role
	u.Diamonds = update.Diamonds
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserProfiles(_ context.Context, ids []string) (map[string]domain.ParticipantProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.ParticipantProfile)
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u.Summary()
		}
	}
	return out, nil
}

// DiamondStore

func (m *memStore) AddDiamonds(_ context.Context, award domain.DiamondAward) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[award.UserID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	if u.Diamonds+award.Delta < 0 {
		return 0, domain.ErrInsufficientDiamonds
	}
	u.Diamonds += award.Delta
	m.events = append(m.events, award)
	return u.Diamonds, nil
}

func (m *memStore) GetAllDiamonds(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for id, u := range m.users {
		out[id] = u.Diamonds
	}
	return out, nil
}

// BattleStore

func (m *memStore) CreateBattle(_ context.Context, battle *domain.Battle, request *domain.BattleRequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *battle
	m.battles[battle.ID] = &cp
	if request != nil {
		rc := *request
		m.records[request.ID] = &rc
	}
	return nil
}

func (m *memStore) GetBattle(_ context.Context, id string) (*domain.Battle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.battles[id]
	if !ok {
		return nil, domain.ErrBattleNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) ListBattles(_ context.Context, f domain.BattleFilter) ([]domain.Battle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Battle
	for _, b := range m.battles {
		switch {
		case f.Status != "" && b.Status != f.Status:
		case f.RequestType != "" && b.RequestType != f.RequestType:
		case f.ReceiverID != "" && b.CreatorBID != f.ReceiverID:
		case f.ParticipantID != "" && !b.IsParticipant(f.ParticipantID):
		case f.Before != nil && !b.DateTime.Before(*f.Before):
		default:
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.After(out[j].DateTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateBattleStatus(_ context.Context, battle *domain.Battle, from domain.BattleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.battles[battle.ID]
	if !ok {
		return domain.ErrBattleNotFound
	}
	if b.Status != from {
		return domain.ErrInvalidTransition
	}
	cp := *battle
	m.battles[battle.ID] = &cp
	for _, r := range m.records {
		if r.BattleID == battle.ID {
			r.Status = battle.Status
		}
	}
	return nil
}

func (m *memStore) UpdateBattle(_ context.Context, battle *domain.Battle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.battles[battle.ID]; !ok {
		return domain.ErrBattleNotFound
	}
	cp := *battle
	m.battles[battle.ID] = &cp
	return nil
}

func (m *memStore) DeleteBattle(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.battles[id]; !ok {
		return domain.ErrBattleNotFound
	}
	delete(m.battles, id)
	return nil
}

func (m *memStore) CreateModification(_ context.Context, req *domain.ModificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.mods[req.ID] = &cp
	return nil
}

func (m *memStore) GetModification(_ context.Context, id string) (*domain.ModificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.mods[id]
	if !ok {
		return nil, domain.ErrModificationNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListModifications(_ context.Context, status domain.ModificationStatus) ([]domain.ModificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ModificationRequest
	for _, r := range m.mods {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) ReviewModification(_ context.Context, req *domain.ModificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.mods[req.ID]
	if !ok {
		return domain.ErrModificationNotFound
	}
	if r.Status != domain.ModificationPending {
		return domain.ErrAlreadyReviewed
	}
	cp := *req
	m.mods[req.ID] = &cp
	return nil
}

func (m *memStore) ApproveModification(_ context.Context, req *domain.ModificationRequest, battle *domain.Battle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.mods[req.ID]
	if !ok {
		return domain.ErrModificationNotFound
	}
	if r.Status != domain.ModificationPending {
		return domain.ErrAlreadyReviewed
	}
	if _, ok := m.battles[battle.ID]; !ok {
		return domain.ErrBattleNotFound
	}
	cp := *req
	m.mods[req.ID] = &cp
	b := *battle
	m.battles[battle.ID] = &b
	return nil
}

// ThreadStore

func cloneThread(t *domain.Thread) *domain.Thread {
	cp := *t
	cp.ParticipantIDs = slices.Clone(t.ParticipantIDs)
	cp.ParticipantProfiles = make(map[string]domain.ParticipantProfile)
	for k, v := range t.ParticipantProfiles {
		cp.ParticipantProfiles[k] = v
	}
	cp.UnreadCounts = make(map[string]int)
	for k, v := range t.UnreadCounts {
		cp.UnreadCounts[k] = v
	}
	if t.LastMessage != nil {
		lm := *t.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}

func (m *memStore) CreateThreadIfAbsent(_ context.Context, thread *domain.Thread) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[thread.ID]; ok {
		return false, nil
	}
	m.threads[thread.ID] = cloneThread(thread)
	m.createdTh++
	return true, nil
}

func (m *memStore) GetThread(_ context.Context, id string) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return nil, domain.ErrThreadNotFound
	}
	return cloneThread(t), nil
}

func (m *memStore) ListThreads(_ context.Context, userID string) ([]domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Thread
	for _, t := range m.threads {
		if slices.Contains(t.ParticipantIDs, userID) {
			out = append(out, *cloneThread(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memStore) AppendMessage(_ context.Context, msg *domain.Message) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[msg.ThreadID]
	if !ok {
		return nil, domain.ErrThreadNotFound
	}
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], *msg)
	t.LastMessage = &domain.LastMessage{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		ContentType: msg.ContentType,
		Timestamp:   msg.Timestamp,
	}
	t.UpdatedAt = msg.Timestamp
	for _, id := range t.ParticipantIDs {
		if id == msg.SenderID {
			t.UnreadCounts[id] = 0
		} else {
			t.UnreadCounts[id]++
		}
	}
	return cloneThread(t), nil
}

func (m *memStore) ListMessages(_ context.Context, threadID string, cursor *domain.MessageCursor, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.messages[threadID] {
		if cursor == nil || cursor.Precedes(msg) {
			out = append(out, msg)
		}
	}
	slices.SortFunc(out, func(a, b domain.Message) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) MarkRead(_ context.Context, threadID, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return 0, domain.ErrThreadNotFound
	}
	t.UnreadCounts[userID] = 0
	var marked int64
	msgs := m.messages[threadID]
	for i := range msgs {
		if msgs[i].SenderID != userID && !slices.Contains(msgs[i].ReadBy, userID) {
			msgs[i].ReadBy = append(msgs[i].ReadBy, userID)
			marked++
		}
	}
	return marked, nil
}

func (m *memStore) SetFlag(_ context.Context, threadID, adminID string, flag domain.FlagRequest) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[threadID]
	if !ok {
		return nil, domain.ErrThreadNotFound
	}
	t.IsFlagged = flag.Flagged
	t.FlaggedBy, t.FlagReason = "", ""
	if flag.Flagged {
		t.FlaggedBy, t.FlagReason = adminID, flag.Reason
	}
	return cloneThread(t), nil
}

// ChannelStore

func (m *memStore) CreateChannel(_ context.Context, channel *domain.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.channels {
		if c.Name == channel.Name {
			return domain.ErrChannelExists
		}
	}
	cp := *channel
	m.channels[channel.ID] = &cp
	return nil
}

func (m *memStore) GetChannel(_ context.Context, id string) (*domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetChannelByName(_ context.Context, name string) (*domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.channels {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrChannelNotFound
}

func (m *memStore) ListChannels(_ context.Context) ([]domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Channel
	for _, c := range m.channels {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateChatMessage(_ context.Context, msg *domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat[msg.ChannelID] = append(m.chat[msg.ChannelID], *msg)
	return nil
}

func (m *memStore) ListChatMessages(_ context.Context, channelID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.chat[channelID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return slices.Clone(all), nil
}

// memRanking is an in-memory Ranking
type memRanking struct {
	mu     sync.Mutex
	scores map[string]int64
}

func newMemRanking() *memRanking {
	return &memRanking{scores: make(map[string]int64)}
}

func (r *memRanking) SetDiamonds(_ context.Context, userID string, diamonds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[userID] = diamonds
	return nil
}

func (r *memRanking) sorted() []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(r.scores))
	for id, d := range r.scores {
		entries = append(entries, domain.LeaderboardEntry{UserID: id, Diamonds: d})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Diamonds != entries[j].Diamonds {
			return entries[i].Diamonds > entries[j].Diamonds
		}
		return entries[i].UserID > entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

func (r *memRanking) GetTopN(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.sorted()
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (r *memRanking) GetUserRank(_ context.Context, userID string) (*domain.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.sorted() {
		if e.UserID == userID {
			return &e, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memRanking) GetAroundUser(_ context.Context, userID string, count int) ([]domain.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.sorted()
	for i, e := range entries {
		if e.UserID == userID {
			return entries[max(i-count, 0):min(i+count+1, len(entries))], nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memRanking) GetCount(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.scores)), nil
}

// memTyping is an in-memory TypingTracker driven by an explicit clock
type memTyping struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]map[string]typingEntry
}

type typingEntry struct {
	indicator domain.TypingIndicator
	expires   time.Time
}

func newMemTyping(now func() time.Time) *memTyping {
	return &memTyping{now: now, entries: make(map[string]map[string]typingEntry)}
}

func (t *memTyping) SetTyping(_ context.Context, threadID string, indicator domain.TypingIndicator, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries[threadID] == nil {
		t.entries[threadID] = make(map[string]typingEntry)
	}
	indicator.IsTyping = true
	indicator.LastTypingAt = t.now()
	t.entries[threadID][indicator.UserID] = typingEntry{indicator: indicator, expires: t.now().Add(ttl)}
	return nil
}

func (t *memTyping) ClearTyping(_ context.Context, threadID, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries[threadID], userID)
	return nil
}

func (t *memTyping) TypingUsers(_ context.Context, threadID string) ([]domain.TypingIndicator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := []domain.TypingIndicator{}
	for id, e := range t.entries[threadID] {
		if !t.now().Before(e.expires) {
			delete(t.entries[threadID], id)
			continue
		}
		out = append(out, e.indicator)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// recordingNotifier captures notifications for assertions
type recordingNotifier struct {
	mu          sync.Mutex
	threads     []domain.Thread
	messages    []domain.Message
	typing      map[string][]domain.TypingIndicator
	battles     []domain.Battle
	chat        []domain.ChatMessage
	leaderboard [][]domain.LeaderboardEntry
	users       []domain.User
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{typing: make(map[string][]domain.TypingIndicator)}
}

func (n *recordingNotifier) NotifyThread(t *domain.Thread) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.threads = append(n.threads, *t)
}

func (n *recordingNotifier) NotifyMessage(m *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, *m)
}

func (n *recordingNotifier) NotifyTyping(threadID string, typing []domain.TypingIndicator) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.typing[threadID] = typing
}

func (n *recordingNotifier) NotifyBattle(b *domain.Battle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.battles = append(n.battles, *b)
}

func (n *recordingNotifier) NotifyChatMessage(m *domain.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chat = append(n.chat, *m)
}

func (n *recordingNotifier) NotifyLeaderboard(entries []domain.LeaderboardEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leaderboard = append(n.leaderboard, entries)
}

func (n *recordingNotifier) NotifyUser(u *domain.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, *u)
}

// clock is a manually advanced time source
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires every service over shared fakes
type fixture struct {
	store    *memStore
	ranking  *memRanking
	typing   *memTyping
	notifier *recordingNotifier
	clock    *clock

	users    *UserService
	battles  *BattleService
	threads  *ThreadService
	channels *ChannelService
	board    *LeaderboardService
}

func newFixture() *fixture {
	f := &fixture{
		store:    newMemStore(),
		ranking:  newMemRanking(),
		notifier: newRecordingNotifier(),
		clock:    newClock(),
	}
	f.typing = newMemTyping(f.clock.Now)
	cfg := config.DefaultConfig()
	logger := testLogger()

	f.users = NewUserService(f.store, f.ranking, nil, f.notifier, []string{"root"}, logger)
	f.battles = NewBattleService(f.store, f.store, f.notifier, cfg.Messaging.BattleRequestsPage, logger)
	f.battles.now = f.clock.Now
	f.threads = NewThreadService(f.store, f.store, f.typing, f.notifier, &cfg.Messaging, logger)
	f.threads.now = f.clock.Now
	f.channels = NewChannelService(f.store, f.notifier, &cfg.Messaging, logger)
	f.channels.now = f.clock.Now
	f.board = NewLeaderboardService(f.ranking, f.store, f.store, f.notifier, &cfg.Leaderboard, logger)

	f.battles.SetAnnouncer(f.channels)
	f.battles.SetInviter(f.threads)
	return f
}
