package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yasser311511/chat-app2/internal/logging"
	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// fakeStore is an in-memory repository.Store for engine tests.
type fakeStore struct {
	mu          sync.Mutex
	identities  map[string]chat.Identity
	sessions    map[string]chat.Session
	rooms       []*chat.Room
	defs        []chat.Rank
	assignments map[string]chat.RankAssignment
	mutes       map[string]chat.Mute
	roomBans    map[string]chat.RoomBan // roomID+"/"+username
	siteBans    map[string]chat.SiteBan
	progression map[string]chat.Progression
	messages    []chat.Message
	audits      []chat.AuditEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities:  make(map[string]chat.Identity),
		sessions:    make(map[string]chat.Session),
		assignments: make(map[string]chat.RankAssignment),
		mutes:       make(map[string]chat.Mute),
		roomBans:    make(map[string]chat.RoomBan),
		siteBans:    make(map[string]chat.SiteBan),
		progression: make(map[string]chat.Progression),
	}
}

func (f *fakeStore) CreateIdentity(_ context.Context, id chat.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.identities[id.Username]; ok {
		return chat.ErrNameTaken
	}
	f.identities[id.Username] = id
	return nil
}

func (f *fakeStore) GetIdentity(_ context.Context, username string) (chat.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[username]
	if !ok {
		return chat.Identity{}, chat.ErrIdentityNotFound
	}
	return id, nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, username, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[username]
	if !ok {
		return chat.ErrIdentityNotFound
	}
	id.PasswordHash = hash
	f.identities[username] = id
	return nil
}

func (f *fakeStore) UpdateAvatar(_ context.Context, username, avatar string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[username]
	if !ok {
		return chat.ErrIdentityNotFound
	}
	id.Avatar = avatar
	f.identities[username] = id
	return nil
}

func (f *fakeStore) DeleteIdentity(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.identities[username]; !ok {
		return chat.ErrIdentityNotFound
	}
	delete(f.identities, username)
	delete(f.assignments, username)
	delete(f.mutes, username)
	delete(f.siteBans, username)
	delete(f.progression, username)
	for token, s := range f.sessions {
		if s.Username == username {
			delete(f.sessions, token)
		}
	}
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, s chat.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.Token] = s
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, token string) (chat.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return chat.Session{}, chat.ErrSessionInvalid
	}
	return s, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	return nil
}

func (f *fakeStore) DeleteSessionsFor(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, s := range f.sessions {
		if s.Username == username {
			delete(f.sessions, token)
		}
	}
	return nil
}

func (f *fakeStore) ListRooms(_ context.Context) ([]*chat.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms, nil
}

func (f *fakeStore) SeedRooms(_ context.Context, rooms []*chat.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = rooms
	return nil
}

func (f *fakeStore) InsertRoom(_ context.Context, room chat.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.ID == room.ID {
			return chat.ErrRoomExists
		}
	}
	f.rooms = append(f.rooms, &room)
	return nil
}

func (f *fakeStore) DeleteRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rooms {
		if r.ID == roomID {
			f.rooms = append(f.rooms[:i], f.rooms[i+1:]...)
			for key, b := range f.roomBans {
				if b.RoomID == roomID {
					delete(f.roomBans, key)
				}
			}
			return nil
		}
	}
	return chat.ErrRoomNotFound
}

func (f *fakeStore) SeedRankDefinitions(_ context.Context, ranks []chat.Rank) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defs = ranks
	return nil
}

func (f *fakeStore) ListRankDefinitions(_ context.Context) ([]chat.Rank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defs, nil
}

func (f *fakeStore) ListRankAssignments(_ context.Context) ([]chat.RankAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.RankAssignment, 0, len(f.assignments))
	for _, a := range f.assignments {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStore) UpsertRankAssignment(_ context.Context, a chat.RankAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments[a.Username] = a
	return nil
}

func (f *fakeStore) DeleteRankAssignment(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assignments, username)
	return nil
}

func (f *fakeStore) ListMutes(_ context.Context) ([]chat.Mute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.Mute, 0, len(f.mutes))
	for _, m := range f.mutes {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) UpsertMute(_ context.Context, m chat.Mute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutes[m.Username] = m
	return nil
}

func (f *fakeStore) DeleteMute(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mutes, username)
	return nil
}

func (f *fakeStore) ListRoomBans(_ context.Context) ([]chat.RoomBan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.RoomBan, 0, len(f.roomBans))
	for _, b := range f.roomBans {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) InsertRoomBan(_ context.Context, b chat.RoomBan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomBans[b.RoomID+"/"+b.Username] = b
	return nil
}

func (f *fakeStore) DeleteRoomBan(_ context.Context, roomID, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.roomBans, roomID+"/"+username)
	return nil
}

func (f *fakeStore) ListSiteBans(_ context.Context) ([]chat.SiteBan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.SiteBan, 0, len(f.siteBans))
	for _, b := range f.siteBans {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) InsertSiteBan(_ context.Context, b chat.SiteBan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.siteBans[b.Username] = b
	return nil
}

func (f *fakeStore) DeleteSiteBan(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.siteBans, username)
	return nil
}

func (f *fakeStore) InsertAuditEvent(_ context.Context, e chat.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, e)
	return nil
}

func (f *fakeStore) InsertMessage(_ context.Context, m chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeStore) ListProgression(_ context.Context) ([]chat.Progression, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]chat.Progression, 0, len(f.progression))
	for _, p := range f.progression {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) UpsertProgression(_ context.Context, p chat.Progression) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progression[p.Username] = p
	return nil
}

func (f *fakeStore) RenameIdentity(_ context.Context, oldName, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[oldName]
	if !ok {
		return chat.ErrIdentityNotFound
	}
	if _, taken := f.identities[newName]; taken {
		return chat.ErrNameTaken
	}
	delete(f.identities, oldName)
	id.Username = newName
	f.identities[newName] = id
	if a, ok := f.assignments[oldName]; ok {
		delete(f.assignments, oldName)
		a.Username = newName
		f.assignments[newName] = a
	}
	if m, ok := f.mutes[oldName]; ok {
		delete(f.mutes, oldName)
		m.Username = newName
		f.mutes[newName] = m
	}
	if p, ok := f.progression[oldName]; ok {
		delete(f.progression, oldName)
		p.Username = newName
		f.progression[newName] = p
	}
	// sessions die inside the rename transaction instead of being rewritten
	for token, s := range f.sessions {
		if s.Username == oldName {
			delete(f.sessions, token)
		}
	}
	return nil
}

// sessionPurgeDownStore simulates an outage of the standalone session purge.
// The rename path must not depend on that call.
type sessionPurgeDownStore struct{ *fakeStore }

func (s sessionPurgeDownStore) DeleteSessionsFor(context.Context, string) error {
	return errors.New("session purge offline")
}

// fakeBroadcaster records fan-out calls.
type fakeBroadcaster struct {
	mu        sync.Mutex
	delivered [][]byte
	userMsgs  map[string][][]byte
	closed    map[string]int
	renames   [][2]string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		userMsgs: make(map[string][][]byte),
		closed:   make(map[string]int),
	}
}

func (b *fakeBroadcaster) Deliver(connIDs []string, payload []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delivered = append(b.delivered, payload)
	return len(connIDs)
}

func (b *fakeBroadcaster) DeliverAll(payload []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delivered = append(b.delivered, payload)
	return 0
}

func (b *fakeBroadcaster) Notify(connID string, payload []byte) bool { return true }

func (b *fakeBroadcaster) NotifyUser(username string, payload []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userMsgs[username] = append(b.userMsgs[username], payload)
	return 1
}

func (b *fakeBroadcaster) CloseUser(username string, code int, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed[username] = code
}

func (b *fakeBroadcaster) RenameUser(old, new string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.renames = append(b.renames, [2]string{old, new})
}

func (b *fakeBroadcaster) closeCode(username string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	code, ok := b.closed[username]
	return code, ok
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) With(...any) logging.Logger            { return nopLogger{} }

// testClock is a manually advanced clock shared with the engine under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	eng   *Engine
	store *fakeStore
	bc    *fakeBroadcaster
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	bc := newFakeBroadcaster()
	clock := newTestClock()
	eng := New(store, bc, nil, nopLogger{}, Config{
		SpamWindow:     15 * time.Second,
		SpamThreshold:  3,
		CoalesceWindow: 5 * time.Millisecond,
		Clock:          clock.Now,
	})
	require.NoError(t, eng.Load(context.Background()))
	t.Cleanup(eng.Shutdown)
	return &fixture{eng: eng, store: store, bc: bc, clock: clock}
}

func (f *fixture) addUser(t *testing.T, username string) {
	t.Helper()
	require.NoError(t, f.store.CreateIdentity(context.Background(), chat.Identity{
		Username: username, PasswordHash: "x", CreatedAt: f.clock.Now(),
	}))
}

func (f *fixture) addOwner(t *testing.T, username string) {
	t.Helper()
	require.NoError(t, f.eng.EnsureOwner(context.Background(), username, "secret"))
}

func TestJoinAndLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")

	result, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)
	assert.Equal(t, "general", result.RoomID)
	require.Len(t, result.Members, 1)
	assert.Equal(t, "alice", result.Members[0].Username)
	require.NotEmpty(t, result.History)
	assert.Equal(t, chat.MessageKindSystem, result.History[len(result.History)-1].Kind)

	members, err := f.eng.MembersOf("general")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	f.eng.Leave(ctx, "c1")
	members, err = f.eng.MembersOf("general")
	require.NoError(t, err)
	assert.Empty(t, members)

	// connection is still attached, just roomless
	p, ok := f.eng.PresenceOf("c1")
	require.True(t, ok)
	assert.Empty(t, p.RoomID)
}

func TestJoinSwitchesRoomAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")

	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)
	_, err = f.eng.Join(ctx, "c1", "alice", "tech")
	require.NoError(t, err)

	general, _ := f.eng.MembersOf("general")
	tech, _ := f.eng.MembersOf("tech")
	assert.Empty(t, general)
	assert.Len(t, tech, 1)
}

func TestJoinRejectsDuplicateIdentityInRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")

	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)
	_, err = f.eng.Join(ctx, "c2", "alice", "general")
	assert.ErrorIs(t, err, chat.ErrAlreadyInRoom)

	// a different room is fine for the second connection
	_, err = f.eng.Join(ctx, "c2", "alice", "tech")
	assert.NoError(t, err)
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice")
	_, err := f.eng.Join(context.Background(), "c1", "alice", "atlantis")
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)
}

func TestJoinSiteBannedRejected(t *testing.T) {
	store := newFakeStore()
	store.siteBans["alice"] = chat.SiteBan{Username: "alice", Issuer: "admin"}
	store.identities["alice"] = chat.Identity{Username: "alice"}
	eng := New(store, newFakeBroadcaster(), nil, nopLogger{}, Config{})
	require.NoError(t, eng.Load(context.Background()))
	defer eng.Shutdown()

	_, err := eng.Join(context.Background(), "c1", "alice", "general")
	assert.ErrorIs(t, err, chat.ErrSiteBanned)
}

func TestDisconnectDropsPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")

	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)
	f.eng.Disconnect(ctx, "c1")

	_, ok := f.eng.PresenceOf("c1")
	assert.False(t, ok)
	members, _ := f.eng.MembersOf("general")
	assert.Empty(t, members)
}

func TestSendRecordsHistoryAndProgression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)

	result, err := f.eng.Send(ctx, "c1", "hello world", chat.MessageKindText, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Message.Author)
	assert.False(t, result.LeveledUp)

	recent, err := f.eng.Recent("general", 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", recent[len(recent)-1].Content)

	p, ok := f.store.progression["alice"]
	require.True(t, ok)
	assert.Equal(t, chat.PointsPerMessage, p.Points)
}

func TestSendWithoutRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.Send(context.Background(), "ghost", "hi", chat.MessageKindText, nil)
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)
}

func TestSendMutedThenLazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)

	require.NoError(t, f.eng.Mute(ctx, "boss", "alice", 10*time.Minute))
	_, err = f.eng.Send(ctx, "c1", "can I talk", chat.MessageKindText, nil)
	assert.ErrorIs(t, err, chat.ErrMuted)

	// past expiry the next send succeeds and the record is purged everywhere
	f.clock.Advance(11 * time.Minute)
	_, err = f.eng.Send(ctx, "c1", "free again", chat.MessageKindText, nil)
	require.NoError(t, err)
	_, ok := f.store.mutes["alice"]
	assert.False(t, ok)
	st := f.eng.StatusOf("alice")
	assert.Nil(t, st.Mute)
}

func TestSpamTripsAutoMute(t *testing.T) {
	f := newFixture(t) // threshold 3 in 15s
	ctx := context.Background()
	f.addUser(t, "spammer")
	_, err := f.eng.Join(ctx, "c1", "spammer", "general")
	require.NoError(t, err)

	_, err = f.eng.Send(ctx, "c1", "a", chat.MessageKindText, nil)
	require.NoError(t, err)
	_, err = f.eng.Send(ctx, "c1", "b", chat.MessageKindText, nil)
	require.NoError(t, err)
	_, err = f.eng.Send(ctx, "c1", "c", chat.MessageKindText, nil)
	assert.ErrorIs(t, err, chat.ErrMuted)

	m, ok := f.store.mutes["spammer"]
	require.True(t, ok)
	assert.Equal(t, chat.SystemIssuer, m.Issuer)
	assert.Equal(t, f.clock.Now().Add(chat.SpamMuteDuration), m.ExpiresAt)

	// still muted on the next attempt
	_, err = f.eng.Send(ctx, "c1", "d", chat.MessageKindText, nil)
	assert.ErrorIs(t, err, chat.ErrMuted)
}

func TestBlankFramesDoNotFeedThrottle(t *testing.T) {
	f := newFixture(t) // threshold 3 in 15s
	ctx := context.Background()
	f.addUser(t, "alice")
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.eng.Send(ctx, "c1", "   \t  ", chat.MessageKindText, nil)
		require.Error(t, err)
		require.NotErrorIs(t, err, chat.ErrMuted)
	}
	assert.Empty(t, f.store.mutes)

	// the full budget is still available for real messages
	_, err = f.eng.Send(ctx, "c1", "one", chat.MessageKindText, nil)
	require.NoError(t, err)
	_, err = f.eng.Send(ctx, "c1", "two", chat.MessageKindText, nil)
	require.NoError(t, err)
	_, err = f.eng.Send(ctx, "c1", "three", chat.MessageKindText, nil)
	assert.ErrorIs(t, err, chat.ErrMuted)
}

func TestOwnerBypassesThrottle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addOwner(t, "boss")
	_, err := f.eng.Join(ctx, "c1", "boss", "general")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err = f.eng.Send(ctx, "c1", "announcement", chat.MessageKindText, nil)
		require.NoError(t, err)
	}
}

func TestModerationRequiresAuthority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addUser(t, "bob")
	f.addOwner(t, "boss")

	assert.ErrorIs(t, f.eng.Mute(ctx, "alice", "bob", time.Minute), chat.ErrForbidden)
	assert.ErrorIs(t, f.eng.Mute(ctx, "alice", "boss", time.Minute), chat.ErrOwnerTarget)
	assert.ErrorIs(t, f.eng.BanFromSite(ctx, "bob", "boss", "coup"), chat.ErrOwnerTarget)
	assert.NoError(t, f.eng.Mute(ctx, "boss", "alice", time.Minute))
}

func TestAdminCannotActOnPeer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "mod1")
	f.addUser(t, "mod2")
	f.addOwner(t, "boss")

	require.NoError(t, f.eng.AssignRank(ctx, "boss", "mod1", "admin"))
	require.NoError(t, f.eng.AssignRank(ctx, "boss", "mod2", "admin"))

	assert.False(t, f.eng.CanAct("mod1", "mod2"))
	assert.ErrorIs(t, f.eng.Mute(ctx, "mod1", "mod2", time.Minute), chat.ErrForbidden)
	assert.True(t, f.eng.CanAct("mod1", "alice-nobody"))
}

func TestAssignRankUpdatesLivePresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)

	require.NoError(t, f.eng.AssignRank(ctx, "boss", "alice", "vip"))

	p, ok := f.eng.PresenceOf("c1")
	require.True(t, ok)
	assert.Equal(t, "vip", p.Rank)
	members, _ := f.eng.MembersOf("general")
	require.Len(t, members, 1)
	assert.Equal(t, "vip", members[0].Rank)

	a, ok := f.store.assignments["alice"]
	require.True(t, ok)
	require.NotNil(t, a.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(chat.RankAssignmentTTL), *a.ExpiresAt)
}

func TestAssignRankRejectsOwnerRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")

	assert.ErrorIs(t, f.eng.AssignRank(ctx, "boss", "alice", "owner"), chat.ErrForbidden)
	assert.ErrorIs(t, f.eng.AssignRank(ctx, "boss", "alice", "nonesuch"), chat.ErrRankNotFound)
}

func TestRemoveRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	require.NoError(t, f.eng.AssignRank(ctx, "boss", "alice", "admin"))

	require.NoError(t, f.eng.RemoveRank(ctx, "boss", "alice"))
	assert.Empty(t, f.eng.StatusOf("alice").Rank)
	_, ok := f.store.assignments["alice"]
	assert.False(t, ok)
}

func TestExpiredRankConfersNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addUser(t, "bob")
	f.addOwner(t, "boss")
	require.NoError(t, f.eng.AssignRank(ctx, "boss", "alice", "admin"))
	require.True(t, f.eng.CanAct("alice", "bob"))

	f.clock.Advance(chat.RankAssignmentTTL + time.Hour)
	assert.False(t, f.eng.CanAct("alice", "bob"))
}

func TestEnsureOwnerDemotesPreviousOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addOwner(t, "boss")
	require.Equal(t, "owner", f.eng.StatusOf("boss").Rank)

	require.NoError(t, f.eng.EnsureOwner(ctx, "chief", "secret"))

	assert.Empty(t, f.eng.StatusOf("boss").Rank)
	assert.Equal(t, "owner", f.eng.StatusOf("chief").Rank)
	_, kept := f.store.assignments["boss"]
	assert.False(t, kept)
	live := f.eng.ListAssignments()
	require.Len(t, live, 1)
	assert.Equal(t, "chief", live[0].Username)
}

func TestSweepCollectsExpiredRanksAndMutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	require.NoError(t, f.eng.AssignRank(ctx, "boss", "alice", "vip"))
	require.NoError(t, f.eng.Mute(ctx, "boss", "alice", time.Minute))

	f.clock.Advance(chat.RankAssignmentTTL + time.Hour)
	f.eng.Sweep(ctx)

	_, rankKept := f.store.assignments["alice"]
	assert.False(t, rankKept)
	_, muteKept := f.store.mutes["alice"]
	assert.False(t, muteKept)

	// the permanent owner assignment survives every sweep
	live := f.eng.ListAssignments()
	require.Len(t, live, 1)
	assert.Equal(t, "boss", live[0].Username)
}

func TestBanFromSiteEvictsAndDisconnects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)
	require.NoError(t, f.store.CreateSession(ctx, chat.Session{Token: "tok", Username: "alice"}))

	require.NoError(t, f.eng.BanFromSite(ctx, "boss", "alice", "abuse"))

	members, _ := f.eng.MembersOf("general")
	assert.Empty(t, members)
	_, ok := f.eng.PresenceOf("c1")
	assert.False(t, ok)
	_, closed := f.bc.closeCode("alice")
	assert.True(t, closed)
	assert.Empty(t, f.store.sessions)
	assert.True(t, f.eng.IsSiteBanned("alice"))

	_, err = f.eng.Join(ctx, "c2", "alice", "general")
	assert.ErrorIs(t, err, chat.ErrSiteBanned)

	require.NoError(t, f.eng.UnbanFromSite(ctx, "boss", "alice"))
	_, err = f.eng.Join(ctx, "c2", "alice", "general")
	assert.NoError(t, err)
}

func TestBanFromRoomEjectsOnlyThatRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)

	require.NoError(t, f.eng.BanFromRoom(ctx, "boss", "alice", "general", "off topic"))

	members, _ := f.eng.MembersOf("general")
	assert.Empty(t, members)
	// still connected, can join elsewhere
	_, err = f.eng.Join(ctx, "c1", "alice", "tech")
	require.NoError(t, err)
	_, err = f.eng.Join(ctx, "c1", "alice", "general")
	assert.ErrorIs(t, err, chat.ErrBannedFromRoom)

	require.NoError(t, f.eng.UnbanFromRoom(ctx, "boss", "alice", "general"))
	_, err = f.eng.Join(ctx, "c1", "alice", "general")
	assert.NoError(t, err)
}

func TestRenameRewritesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	require.NoError(t, f.eng.AssignRank(ctx, "boss", "alice", "vip"))
	require.NoError(t, f.store.CreateSession(ctx, chat.Session{Token: "tok", Username: "alice"}))
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)
	_, err = f.eng.Send(ctx, "c1", "hi", chat.MessageKindText, nil)
	require.NoError(t, err)

	require.NoError(t, f.eng.Rename(ctx, "alice", "alice", "alicia"))

	_, err = f.store.GetIdentity(ctx, "alice")
	assert.ErrorIs(t, err, chat.ErrIdentityNotFound)
	_, err = f.store.GetIdentity(ctx, "alicia")
	assert.NoError(t, err)

	// all sessions invalidated
	assert.Empty(t, f.store.sessions)

	// live state follows the new identifier
	p, ok := f.eng.PresenceOf("c1")
	require.True(t, ok)
	assert.Equal(t, "alicia", p.Username)
	members, _ := f.eng.MembersOf("general")
	require.Len(t, members, 1)
	assert.Equal(t, "alicia", members[0].Username)
	assert.Equal(t, "vip", f.eng.StatusOf("alicia").Rank)
	assert.Empty(t, f.eng.StatusOf("alice").Rank)

	f.bc.mu.Lock()
	renames := f.bc.renames
	f.bc.mu.Unlock()
	require.Len(t, renames, 1)
	assert.Equal(t, [2]string{"alice", "alicia"}, renames[0])
}

func TestRenameInvalidatesSessionsAtomically(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	eng := New(sessionPurgeDownStore{store}, newFakeBroadcaster(), nil, nopLogger{}, Config{})
	require.NoError(t, eng.Load(ctx))
	defer eng.Shutdown()

	require.NoError(t, store.CreateIdentity(ctx, chat.Identity{Username: "alice", PasswordHash: "x"}))
	require.NoError(t, store.CreateSession(ctx, chat.Session{Token: "tok", Username: "alice", PasswordHash: "x"}))

	require.NoError(t, eng.Rename(ctx, "alice", "alice", "alicia"))

	// the session fell with the rename transaction, not with the purge call
	_, err := store.GetSession(ctx, "tok")
	assert.ErrorIs(t, err, chat.ErrSessionInvalid)
	assert.Empty(t, store.sessions)
}

func TestRenameRoundTripRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	require.NoError(t, f.eng.AssignRank(ctx, "boss", "alice", "vip"))
	require.NoError(t, f.eng.Mute(ctx, "boss", "alice", time.Hour))
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)

	require.NoError(t, f.eng.Rename(ctx, "alice", "alice", "alicia"))
	require.NoError(t, f.eng.Rename(ctx, "alicia", "alicia", "alice"))

	_, err = f.store.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	_, err = f.store.GetIdentity(ctx, "alicia")
	assert.ErrorIs(t, err, chat.ErrIdentityNotFound)

	a, ok := f.store.assignments["alice"]
	require.True(t, ok)
	assert.Equal(t, "vip", a.Rank)
	_, stale := f.store.assignments["alicia"]
	assert.False(t, stale)
	m, ok := f.store.mutes["alice"]
	require.True(t, ok)
	assert.Equal(t, "boss", m.Issuer)

	assert.Equal(t, "vip", f.eng.StatusOf("alice").Rank)
	assert.Empty(t, f.eng.StatusOf("alicia").Rank)
	p, ok := f.eng.PresenceOf("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", p.Username)
	members, _ := f.eng.MembersOf("general")
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Username)
}

func TestRenameValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addUser(t, "bob")

	assert.Error(t, f.eng.Rename(ctx, "alice", "alice", "x"))
	assert.ErrorIs(t, f.eng.Rename(ctx, "alice", "alice", "bob"), chat.ErrNameTaken)
	// renaming someone else needs authority
	assert.ErrorIs(t, f.eng.Rename(ctx, "alice", "bob", "robert"), chat.ErrForbidden)
	// no-op rename succeeds
	assert.NoError(t, f.eng.Rename(ctx, "alice", "alice", "alice"))
}

func TestDeleteIdentityCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	require.NoError(t, f.eng.AssignRank(ctx, "boss", "alice", "vip"))
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)

	require.NoError(t, f.eng.DeleteIdentity(ctx, "boss", "alice"))

	_, err = f.store.GetIdentity(ctx, "alice")
	assert.ErrorIs(t, err, chat.ErrIdentityNotFound)
	members, _ := f.eng.MembersOf("general")
	assert.Empty(t, members)
	_, closed := f.bc.closeCode("alice")
	assert.True(t, closed)
	assert.Empty(t, f.eng.StatusOf("alice").Rank)
}

func TestSetAvatarPropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)

	require.NoError(t, f.eng.SetAvatar(ctx, "alice", "alice", "https://cdn.example/a.png"))

	id, err := f.store.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.png", id.Avatar)
	members, _ := f.eng.MembersOf("general")
	assert.Equal(t, "https://cdn.example/a.png", members[0].Avatar)

	// a stranger may not change someone else's avatar
	f.addUser(t, "bob")
	assert.ErrorIs(t, f.eng.SetAvatar(ctx, "bob", "alice", "x.png"), chat.ErrForbidden)
}

func TestCreateRoomOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")

	assert.ErrorIs(t, f.eng.CreateRoom(ctx, "alice", chat.Room{ID: "hideout"}), chat.ErrForbidden)

	require.NoError(t, f.eng.CreateRoom(ctx, "boss", chat.Room{ID: "hideout", Name: "Hideout"}))
	assert.ErrorIs(t, f.eng.CreateRoom(ctx, "boss", chat.Room{ID: "hideout"}), chat.ErrRoomExists)
	assert.Error(t, f.eng.CreateRoom(ctx, "boss", chat.Room{ID: "Bad Name!"}))

	// the new room is joinable and listed after the bootstrap set
	_, err := f.eng.Join(ctx, "c1", "alice", "hideout")
	require.NoError(t, err)
	rooms := f.eng.Rooms()
	assert.Equal(t, "hideout", rooms[len(rooms)-1].ID)
	assert.False(t, rooms[len(rooms)-1].Protected)
}

func TestDeleteRoomVacatesMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addUser(t, "bob")
	f.addOwner(t, "boss")
	require.NoError(t, f.eng.CreateRoom(ctx, "boss", chat.Room{ID: "hideout"}))
	_, err := f.eng.Join(ctx, "c1", "alice", "hideout")
	require.NoError(t, err)
	require.NoError(t, f.eng.BanFromRoom(ctx, "boss", "bob", "hideout", "testing"))

	require.NoError(t, f.eng.DeleteRoom(ctx, "boss", "hideout"))

	_, err = f.eng.MembersOf("hideout")
	assert.ErrorIs(t, err, chat.ErrRoomNotFound)
	// the connection survives roomless and the scoped ban went with the room
	p, ok := f.eng.PresenceOf("c1")
	require.True(t, ok)
	assert.Empty(t, p.RoomID)
	assert.Empty(t, f.eng.StatusOf("bob").RoomBans)
	assert.Empty(t, f.store.roomBans)

	assert.ErrorIs(t, f.eng.DeleteRoom(ctx, "boss", "hideout"), chat.ErrRoomNotFound)
	assert.ErrorIs(t, f.eng.DeleteRoom(ctx, "boss", "staff"), chat.ErrProtectedRoom)
	assert.ErrorIs(t, f.eng.DeleteRoom(ctx, "alice", "general"), chat.ErrForbidden)
}

func TestStatusOf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice")
	f.addOwner(t, "boss")
	require.NoError(t, f.eng.Mute(ctx, "boss", "alice", time.Hour))
	require.NoError(t, f.eng.BanFromRoom(ctx, "boss", "alice", "tech", "spam"))

	st := f.eng.StatusOf("alice")
	require.NotNil(t, st.Mute)
	assert.Equal(t, "boss", st.Mute.Issuer)
	require.Len(t, st.RoomBans, 1)
	assert.Equal(t, "tech", st.RoomBans[0].RoomID)
	assert.Nil(t, st.SiteBan)
	assert.False(t, st.Online)

	_, err := f.eng.Join(ctx, "c1", "alice", "general")
	require.NoError(t, err)
	assert.True(t, f.eng.StatusOf("alice").Online)
}

func TestMembershipBroadcastCoalesces(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	c := newCoalescer(10*time.Millisecond, func(string) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	defer c.stop()

	for i := 0; i < 20; i++ {
		c.mark("general")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fired)
}
