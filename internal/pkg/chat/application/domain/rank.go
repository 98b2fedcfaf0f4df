package chat

import "time"

// Authority thresholds. Levels are a total order; higher outranks lower and
// unranked identities count as level 0.
const (
	// MinModerationLevel is the lowest rank level allowed to moderate others.
	MinModerationLevel = 3

	// RateLimitExemptLevel and above bypass the spam throttle entirely.
	RateLimitExemptLevel = 4

	// RankAssignmentTTL bounds every grant except the owner rank.
	RankAssignmentTTL = 30 * 24 * time.Hour
)

// Rank is a globally shared tier definition. Exactly one rank carries the
// Owner flag; it is unique, non-transferable and outranks everything.
type Rank struct {
	Name  string `db:"name"`
	Color string `db:"color"`
	Icon  string `db:"icon"`
	Level int    `db:"level"`
	Wing  string `db:"wing"`
	Owner bool   `db:"is_owner"`
}

// RankAssignment grants a rank to an identity. A nil ExpiresAt means the grant
// is permanent (only the owner rank is assigned that way).
type RankAssignment struct {
	Username  string     `db:"username"`
	Rank      string     `db:"rank"`
	ExpiresAt *time.Time `db:"expires_at"`
}

// Expired reports whether the assignment has lapsed at the given instant.
func (a RankAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// Hierarchy resolves rank names to definitions and answers authority questions.
// It is immutable after construction; the engine guards any reload.
type Hierarchy struct {
	byName map[string]Rank
}

func NewHierarchy(ranks []Rank) *Hierarchy {
	h := &Hierarchy{byName: make(map[string]Rank, len(ranks))}
	for _, r := range ranks {
		h.byName[r.Name] = r
	}
	return h
}

// Lookup returns the definition for name, if any.
func (h *Hierarchy) Lookup(name string) (Rank, bool) {
	r, ok := h.byName[name]
	return r, ok
}

// Level returns the authority level for a rank name. Unknown or empty names
// resolve to 0 (unranked).
func (h *Hierarchy) Level(name string) int {
	if r, ok := h.byName[name]; ok {
		return r.Level
	}
	return 0
}

// IsOwner reports whether name is the unique top rank.
func (h *Hierarchy) IsOwner(name string) bool {
	r, ok := h.byName[name]
	return ok && r.Owner
}

// CanAct is the central authority predicate: may an actor holding actorRank
// sanction a target holding targetRank?
//
// The owner always may, and may never be targeted. Otherwise the actor must
// strictly outrank the target and sit at or above the moderation floor; the
// strict inequality keeps peers from sanctioning each other.
func (h *Hierarchy) CanAct(actorRank, targetRank string) bool {
	if h.IsOwner(targetRank) {
		return false
	}
	if h.IsOwner(actorRank) {
		return true
	}
	actor := h.Level(actorRank)
	return actor >= MinModerationLevel && actor > h.Level(targetRank)
}

// ThrottleExempt reports whether the rank bypasses the spam throttle.
func (h *Hierarchy) ThrottleExempt(name string) bool {
	return h.IsOwner(name) || h.Level(name) >= RateLimitExemptLevel
}

// Ranks returns all definitions, unordered.
func (h *Hierarchy) Ranks() []Rank {
	out := make([]Rank, 0, len(h.byName))
	for _, r := range h.byName {
		out = append(out, r)
	}
	return out
}

// DefaultRanks is the seeded tier set. The owner rank level is fixed and no
// other rank may claim the flag.
func DefaultRanks() []Rank {
	return []Rank{
		{Name: "owner", Color: "from-red-600 to-orange-400", Icon: "🏆", Level: 100, Wing: "owners", Owner: true},
		{Name: "creator", Color: "from-yellow-400 to-orange-500", Icon: "👑", Level: 5, Wing: "staff"},
		{Name: "superadmin", Color: "from-red-500 to-pink-600", Icon: "⭐", Level: 4, Wing: "staff"},
		{Name: "admin", Color: "from-purple-500 to-indigo-600", Icon: "🛡️", Level: 3, Wing: "staff"},
		{Name: "premium", Color: "from-green-500 to-emerald-600", Icon: "💎", Level: 2, Wing: "members"},
		{Name: "vip", Color: "from-blue-500 to-cyan-600", Icon: "❇️", Level: 1, Wing: "members"},
	}
}
