package engine

import (
	"sync"
	"time"
)

// coalescer batches rapid membership changes. The first change in a window
// arms a timer and later changes piggyback on it; the snapshot is taken when
// the timer fires, so a burst of joins and leaves costs one broadcast.
type coalescer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*time.Timer
	fire    func(roomID string)
	stopped bool
}

func newCoalescer(window time.Duration, fire func(roomID string)) *coalescer {
	return &coalescer{
		window:  window,
		pending: make(map[string]*time.Timer),
		fire:    fire,
	}
}

// mark schedules a broadcast for roomID unless one is already pending.
func (c *coalescer) mark(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if _, ok := c.pending[roomID]; ok {
		return
	}
	c.pending[roomID] = time.AfterFunc(c.window, func() {
		c.mu.Lock()
		delete(c.pending, roomID)
		stopped := c.stopped
		c.mu.Unlock()
		if !stopped {
			c.fire(roomID)
		}
	})
}

// stop cancels all pending broadcasts; used at shutdown.
func (c *coalescer) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for roomID, t := range c.pending {
		t.Stop()
		delete(c.pending, roomID)
	}
}

// broadcastMembership is the coalescer's fire callback: it snapshots the
// room's membership and the global room summaries and fans both out.
func (e *Engine) broadcastMembership(roomID string) {
	e.mu.Lock()
	room, ok := e.rooms[roomID]
	if !ok {
		e.mu.Unlock()
		return
	}
	members := room.Members()
	connIDs := make([]string, len(members))
	for i, m := range members {
		connIDs[i] = m.ConnectionID
	}
	summaries := e.roomSummariesLocked()
	e.mu.Unlock()

	e.bc.Deliver(connIDs, encode(membersEvent{Type: "members", RoomID: roomID, Members: members}))
	e.bc.DeliverAll(encode(roomsEvent{Type: "rooms", Rooms: summaries}))
}

// roomSummariesLocked builds the room listing. Caller holds e.mu.
func (e *Engine) roomSummariesLocked() []RoomSummary {
	out := make([]RoomSummary, 0, len(e.roomOrder))
	for _, id := range e.roomOrder {
		room := e.rooms[id]
		out = append(out, RoomSummary{
			ID:          room.ID,
			Name:        room.Name,
			Icon:        room.Icon,
			Description: room.Description,
			Protected:   room.Protected,
			MemberCount: room.MemberCount(),
		})
	}
	return out
}

// Shutdown stops pending coalesced broadcasts.
func (e *Engine) Shutdown() {
	e.members.stop()
}
