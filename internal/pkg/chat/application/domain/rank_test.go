package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHierarchyCanAct(t *testing.T) {
	h := NewHierarchy(DefaultRanks())

	tests := []struct {
		name   string
		actor  string
		target string
		want   bool
	}{
		{"owner over anyone", "owner", "creator", true},
		{"owner over unranked", "owner", "", true},
		{"nobody over owner", "creator", "owner", false},
		{"owner not even by owner-level peer", "superadmin", "owner", false},
		{"admin over unranked", "admin", "", true},
		{"admin over vip", "admin", "vip", true},
		{"admin over premium", "admin", "premium", true},
		{"admin not over admin", "admin", "admin", false},
		{"admin not over superadmin", "admin", "superadmin", false},
		{"superadmin over admin", "superadmin", "admin", true},
		{"creator over superadmin", "creator", "superadmin", true},
		{"premium below moderation floor", "premium", "vip", false},
		{"premium not over unranked", "premium", "", false},
		{"vip below moderation floor", "vip", "", false},
		{"unranked over nothing", "", "", false},
		{"unknown rank counts as unranked", "ghost", "vip", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.CanAct(tt.actor, tt.target))
		})
	}
}

func TestHierarchyThrottleExempt(t *testing.T) {
	h := NewHierarchy(DefaultRanks())

	assert.True(t, h.ThrottleExempt("owner"))
	assert.True(t, h.ThrottleExempt("creator"))
	assert.True(t, h.ThrottleExempt("superadmin"))
	assert.False(t, h.ThrottleExempt("admin"))
	assert.False(t, h.ThrottleExempt("premium"))
	assert.False(t, h.ThrottleExempt(""))
}

func TestHierarchyLevelAndOwner(t *testing.T) {
	h := NewHierarchy(DefaultRanks())

	assert.Equal(t, 0, h.Level(""))
	assert.Equal(t, 0, h.Level("nope"))
	assert.Equal(t, 3, h.Level("admin"))
	assert.True(t, h.IsOwner("owner"))
	assert.False(t, h.IsOwner("creator"))

	r, ok := h.Lookup("vip")
	require.True(t, ok)
	assert.Equal(t, 1, r.Level)
}

func TestDefaultRanksSingleOwner(t *testing.T) {
	owners := 0
	for _, r := range DefaultRanks() {
		if r.Owner {
			owners++
		}
	}
	assert.Equal(t, 1, owners)
}

func TestRankAssignmentExpired(t *testing.T) {
	now := time.Now()

	permanent := RankAssignment{Username: "a", Rank: "owner"}
	assert.False(t, permanent.Expired(now))

	past := now.Add(-time.Minute)
	lapsed := RankAssignment{Username: "b", Rank: "vip", ExpiresAt: &past}
	assert.True(t, lapsed.Expired(now))

	future := now.Add(time.Minute)
	live := RankAssignment{Username: "c", Rank: "vip", ExpiresAt: &future}
	assert.False(t, live.Expired(now))
	assert.True(t, live.Expired(future))
}
