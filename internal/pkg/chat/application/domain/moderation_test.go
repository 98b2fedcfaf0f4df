package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanSendPrecedence(t *testing.T) {
	now := time.Now()
	s := NewModerationSet()
	s.BanSite(SiteBan{Username: "alice", Issuer: "admin", BannedAt: now})
	s.BanRoom(RoomBan{RoomID: "general", Username: "alice", Issuer: "admin", BannedAt: now})
	s.SetMute(Mute{Username: "alice", Issuer: "admin", ExpiresAt: now.Add(time.Hour)})

	// site ban dominates, then room ban, then mute
	assert.ErrorIs(t, s.CanSend("alice", "general", now), ErrSiteBanned)
	s.UnbanSite("alice")
	assert.ErrorIs(t, s.CanSend("alice", "general", now), ErrBannedFromRoom)
	assert.ErrorIs(t, s.CanSend("alice", "tech", now), ErrMuted)
	s.UnbanRoom("general", "alice")
	assert.ErrorIs(t, s.CanSend("alice", "general", now), ErrMuted)
	s.ClearMute("alice")
	assert.NoError(t, s.CanSend("alice", "general", now))
}

func TestCanSendPurgesLapsedMute(t *testing.T) {
	now := time.Now()
	s := NewModerationSet()
	s.SetMute(Mute{Username: "bob", Issuer: "admin", ExpiresAt: now.Add(time.Minute)})

	assert.ErrorIs(t, s.CanSend("bob", "general", now), ErrMuted)

	later := now.Add(2 * time.Minute)
	assert.NoError(t, s.CanSend("bob", "general", later))
	_, ok := s.MuteFor("bob")
	assert.False(t, ok, "lapsed mute should be purged on evaluation")
}

func TestClearMuteIdempotent(t *testing.T) {
	s := NewModerationSet()
	s.SetMute(Mute{Username: "carol", ExpiresAt: time.Now().Add(time.Hour)})

	assert.True(t, s.ClearMute("carol"))
	assert.False(t, s.ClearMute("carol"))
	assert.False(t, s.ClearMute("never-muted"))
}

func TestMuteOverwrite(t *testing.T) {
	now := time.Now()
	s := NewModerationSet()
	s.SetMute(Mute{Username: "dave", Issuer: "admin", ExpiresAt: now.Add(time.Minute)})
	s.SetMute(Mute{Username: "dave", Issuer: "system", ExpiresAt: now.Add(time.Hour)})

	m, ok := s.MuteFor("dave")
	require.True(t, ok)
	assert.Equal(t, "system", m.Issuer)
	assert.Equal(t, now.Add(time.Hour), m.ExpiresAt)
}

func TestExpiredMutes(t *testing.T) {
	now := time.Now()
	s := NewModerationSet()
	s.SetMute(Mute{Username: "a", ExpiresAt: now.Add(-time.Minute)})
	s.SetMute(Mute{Username: "b", ExpiresAt: now.Add(time.Minute)})

	lapsed := s.ExpiredMutes(now)
	require.Len(t, lapsed, 1)
	assert.Equal(t, "a", lapsed[0].Username)
}

func TestRoomBans(t *testing.T) {
	now := time.Now()
	s := NewModerationSet()
	s.BanRoom(RoomBan{RoomID: "general", Username: "eve", Issuer: "admin", BannedAt: now})
	s.BanRoom(RoomBan{RoomID: "tech", Username: "eve", Issuer: "admin", BannedAt: now})

	assert.True(t, s.IsRoomBanned("general", "eve"))
	assert.False(t, s.IsRoomBanned("general", "frank"))
	assert.Len(t, s.RoomBansFor("eve"), 2)

	assert.True(t, s.UnbanRoom("general", "eve"))
	assert.False(t, s.UnbanRoom("general", "eve"))
	assert.False(t, s.IsRoomBanned("general", "eve"))
}

func TestModerationRename(t *testing.T) {
	now := time.Now()
	s := NewModerationSet()
	s.SetMute(Mute{Username: "old", Issuer: "admin", ExpiresAt: now.Add(time.Hour)})
	s.SetMute(Mute{Username: "other", Issuer: "old", ExpiresAt: now.Add(time.Hour)})
	s.BanRoom(RoomBan{RoomID: "general", Username: "old", Issuer: "admin", BannedAt: now})
	s.BanSite(SiteBan{Username: "victim", Issuer: "old", BannedAt: now})

	s.Rename("old", "new")

	_, ok := s.MuteFor("old")
	assert.False(t, ok)
	m, ok := s.MuteFor("new")
	require.True(t, ok)
	assert.Equal(t, "new", m.Username)

	other, ok := s.MuteFor("other")
	require.True(t, ok)
	assert.Equal(t, "new", other.Issuer)

	assert.False(t, s.IsRoomBanned("general", "old"))
	assert.True(t, s.IsRoomBanned("general", "new"))

	b, ok := s.SiteBanFor("victim")
	require.True(t, ok)
	assert.Equal(t, "new", b.Issuer)
}

func TestRemoveAll(t *testing.T) {
	now := time.Now()
	s := NewModerationSet()
	s.SetMute(Mute{Username: "gone", ExpiresAt: now.Add(time.Hour)})
	s.BanRoom(RoomBan{RoomID: "general", Username: "gone", BannedAt: now})
	s.BanSite(SiteBan{Username: "gone", BannedAt: now})

	s.RemoveAll("gone")

	_, muted := s.MuteFor("gone")
	assert.False(t, muted)
	assert.False(t, s.IsRoomBanned("general", "gone"))
	assert.False(t, s.IsSiteBanned("gone"))
}
