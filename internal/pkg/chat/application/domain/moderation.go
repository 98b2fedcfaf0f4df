package chat

import "time"

// SystemIssuer is the issuer recorded on sanctions the engine applies itself
// (e.g. the spam throttle).
const SystemIssuer = "system"

// Mute suppresses an identity's sends until ExpiresAt. At most one mute is
// active per identity; issuing a new one overwrites the previous record.
type Mute struct {
	Username  string    `db:"username"`
	Issuer    string    `db:"issuer"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Expired reports whether the mute has lapsed at the given instant.
func (m Mute) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// RoomBan bars an identity from one room indefinitely.
type RoomBan struct {
	RoomID   string    `db:"room_id"`
	Username string    `db:"username"`
	Issuer   string    `db:"issuer"`
	Reason   string    `db:"reason"`
	BannedAt time.Time `db:"banned_at"`
}

// SiteBan bars an identity from the whole service indefinitely.
type SiteBan struct {
	Username string    `db:"username"`
	Issuer   string    `db:"issuer"`
	Reason   string    `db:"reason"`
	BannedAt time.Time `db:"banned_at"`
}

// ModerationSet is the in-memory working set of sanction records. It is not
// concurrency-safe; the owning engine serializes access.
type ModerationSet struct {
	mutes    map[string]Mute
	roomBans map[string]map[string]RoomBan // roomID -> username -> ban
	siteBans map[string]SiteBan
}

func NewModerationSet() *ModerationSet {
	return &ModerationSet{
		mutes:    make(map[string]Mute),
		roomBans: make(map[string]map[string]RoomBan),
		siteBans: make(map[string]SiteBan),
	}
}

// SetMute records a mute, overwriting any previous one for the same identity.
func (s *ModerationSet) SetMute(m Mute) {
	s.mutes[m.Username] = m
}

// ClearMute removes the mute for username and reports whether one existed.
// Clearing an unmuted identity is a no-op, not an error.
func (s *ModerationSet) ClearMute(username string) bool {
	_, ok := s.mutes[username]
	delete(s.mutes, username)
	return ok
}

// MuteFor returns the active mute for username without evaluating expiry.
func (s *ModerationSet) MuteFor(username string) (Mute, bool) {
	m, ok := s.mutes[username]
	return m, ok
}

// ExpiredMutes lists mutes that have lapsed at the given instant.
func (s *ModerationSet) ExpiredMutes(now time.Time) []Mute {
	var out []Mute
	for _, m := range s.mutes {
		if m.Expired(now) {
			out = append(out, m)
		}
	}
	return out
}

// CanSend decides whether username may post in roomID right now. Mute expiry
// is evaluated lazily here: a lapsed record is purged as a side effect and the
// send is allowed. Returns one of ErrSiteBanned, ErrBannedFromRoom, ErrMuted,
// or nil.
func (s *ModerationSet) CanSend(username, roomID string, now time.Time) error {
	if _, ok := s.siteBans[username]; ok {
		return ErrSiteBanned
	}
	if bans, ok := s.roomBans[roomID]; ok {
		if _, banned := bans[username]; banned {
			return ErrBannedFromRoom
		}
	}
	if m, ok := s.mutes[username]; ok {
		if !m.Expired(now) {
			return ErrMuted
		}
		delete(s.mutes, username)
	}
	return nil
}

func (s *ModerationSet) BanRoom(b RoomBan) {
	bans := s.roomBans[b.RoomID]
	if bans == nil {
		bans = make(map[string]RoomBan)
		s.roomBans[b.RoomID] = bans
	}
	bans[b.Username] = b
}

func (s *ModerationSet) UnbanRoom(roomID, username string) bool {
	bans, ok := s.roomBans[roomID]
	if !ok {
		return false
	}
	_, existed := bans[username]
	delete(bans, username)
	if len(bans) == 0 {
		delete(s.roomBans, roomID)
	}
	return existed
}

func (s *ModerationSet) IsRoomBanned(roomID, username string) bool {
	bans, ok := s.roomBans[roomID]
	if !ok {
		return false
	}
	_, banned := bans[username]
	return banned
}

// RoomBansFor lists the rooms username is banned from.
func (s *ModerationSet) RoomBansFor(username string) []RoomBan {
	var out []RoomBan
	for _, bans := range s.roomBans {
		if b, ok := bans[username]; ok {
			out = append(out, b)
		}
	}
	return out
}

func (s *ModerationSet) BanSite(b SiteBan) {
	s.siteBans[b.Username] = b
}

func (s *ModerationSet) UnbanSite(username string) bool {
	_, existed := s.siteBans[username]
	delete(s.siteBans, username)
	return existed
}

func (s *ModerationSet) IsSiteBanned(username string) bool {
	_, ok := s.siteBans[username]
	return ok
}

func (s *ModerationSet) SiteBanFor(username string) (SiteBan, bool) {
	b, ok := s.siteBans[username]
	return b, ok
}

// Rename rewrites every record keyed by old, as subject and as issuer, to
// the new identifier. Called only after the durable rename committed.
func (s *ModerationSet) Rename(old, new string) {
	if m, ok := s.mutes[old]; ok {
		delete(s.mutes, old)
		m.Username = new
		s.mutes[new] = m
	}
	for _, m := range s.mutes {
		if m.Issuer == old {
			m.Issuer = new
			s.mutes[m.Username] = m
		}
	}
	for roomID, bans := range s.roomBans {
		if b, ok := bans[old]; ok {
			delete(bans, old)
			b.Username = new
			bans[new] = b
		}
		for user, b := range bans {
			if b.Issuer == old {
				b.Issuer = new
				s.roomBans[roomID][user] = b
			}
		}
	}
	if b, ok := s.siteBans[old]; ok {
		delete(s.siteBans, old)
		b.Username = new
		s.siteBans[new] = b
	}
	for user, b := range s.siteBans {
		if b.Issuer == old {
			b.Issuer = new
			s.siteBans[user] = b
		}
	}
}

// DropRoomBans removes every ban scoped to roomID, used when the room itself
// is deleted.
func (s *ModerationSet) DropRoomBans(roomID string) {
	delete(s.roomBans, roomID)
}

// RemoveAll drops every sanction keyed by username, used when the identity is
// deleted.
func (s *ModerationSet) RemoveAll(username string) {
	delete(s.mutes, username)
	delete(s.siteBans, username)
	for roomID, bans := range s.roomBans {
		delete(bans, username)
		if len(bans) == 0 {
			delete(s.roomBans, roomID)
		}
	}
}
