package chat

// HistoryCapacity bounds the per-room recent-message cache. The durable log
// keeps everything; this buffer only accelerates reconnect backfill.
const HistoryCapacity = 300

// History is a fixed-capacity recent-message buffer, oldest first. Appending
// past capacity evicts the oldest entry. Not concurrency-safe; the owning
// engine serializes access.
type History struct {
	capacity int
	msgs     []Message
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &History{capacity: capacity}
}

func (h *History) Len() int { return len(h.msgs) }

// Append adds a message, evicting the oldest entry once the cap is exceeded.
func (h *History) Append(m Message) {
	h.msgs = append(h.msgs, m)
	if len(h.msgs) > h.capacity {
		// shift rather than re-slice so the backing array doesn't pin evicted entries
		copy(h.msgs, h.msgs[1:])
		h.msgs = h.msgs[:h.capacity]
	}
}

// Recent returns up to limit of the newest messages, oldest first.
func (h *History) Recent(limit int) []Message {
	if limit <= 0 || limit > len(h.msgs) {
		limit = len(h.msgs)
	}
	out := make([]Message, limit)
	copy(out, h.msgs[len(h.msgs)-limit:])
	return out
}

// Before returns up to limit messages older than the one with the given id,
// oldest first. An unknown reference id (evicted or never existed) yields an
// empty slice rather than an error.
func (h *History) Before(messageID string, limit int) []Message {
	idx := -1
	for i, m := range h.msgs {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return nil
	}
	if limit <= 0 || limit > idx {
		limit = idx
	}
	out := make([]Message, limit)
	copy(out, h.msgs[idx-limit:idx])
	return out
}
