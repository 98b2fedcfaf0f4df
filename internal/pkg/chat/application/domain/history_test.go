package chat

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillHistory(h *History, n int) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		h.Append(Message{
			ID:      "m" + strconv.Itoa(i),
			RoomID:  "general",
			Author:  "alice",
			Content: "hello " + strconv.Itoa(i),
			SentAt:  base.Add(time.Duration(i) * time.Second),
		})
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(5)
	fillHistory(h, 8)

	require.Equal(t, 5, h.Len())
	recent := h.Recent(0)
	assert.Equal(t, "m3", recent[0].ID)
	assert.Equal(t, "m7", recent[4].ID)
}

func TestHistoryRecentLimit(t *testing.T) {
	h := NewHistory(10)
	fillHistory(h, 6)

	recent := h.Recent(3)
	require.Len(t, recent, 3)
	// newest three, oldest first
	assert.Equal(t, "m3", recent[0].ID)
	assert.Equal(t, "m5", recent[2].ID)

	assert.Len(t, h.Recent(100), 6)
	assert.Empty(t, NewHistory(5).Recent(3))
}

func TestHistoryBefore(t *testing.T) {
	h := NewHistory(10)
	fillHistory(h, 6)

	page := h.Before("m4", 2)
	require.Len(t, page, 2)
	assert.Equal(t, "m2", page[0].ID)
	assert.Equal(t, "m3", page[1].ID)

	all := h.Before("m4", 0)
	require.Len(t, all, 4)
	assert.Equal(t, "m0", all[0].ID)
}

func TestHistoryBeforeUnknownReference(t *testing.T) {
	h := NewHistory(3)
	fillHistory(h, 5) // m0 and m1 evicted

	assert.Empty(t, h.Before("never-existed", 10))
	assert.Empty(t, h.Before("m0", 10))
	// oldest surviving entry has nothing before it
	assert.Empty(t, h.Before("m2", 10))
}
