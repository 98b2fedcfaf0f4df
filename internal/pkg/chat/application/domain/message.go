package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageKind represents the type of message content.
// 0=text, 1=image, 2=system
type MessageKind int16

const (
	MessageKindText   MessageKind = 0
	MessageKindImage  MessageKind = 1
	MessageKindSystem MessageKind = 2
)

// SystemAuthor is the author recorded on engine-generated messages.
const SystemAuthor = "system"

// Message is an immutable log entry in a room. It lives in the bounded
// in-memory history and, independently, in the unbounded durable log.
type Message struct {
	ID      string      `db:"id" json:"id"`
	RoomID  string      `db:"room_id" json:"room_id"`
	Author  string      `db:"author" json:"author"`
	Kind    MessageKind `db:"kind" json:"kind"`
	Content string      `db:"content" json:"content"`
	ReplyTo *string     `db:"reply_to" json:"reply_to,omitempty"`
	SentAt  time.Time   `db:"sent_at" json:"sent_at"`
}

// NewMessage validates and normalizes a user message.
func NewMessage(roomID, author, content string, kind MessageKind, replyTo *string, now time.Time) (Message, error) {
	if roomID == "" || author == "" {
		return Message{}, errors.New("room and author are required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, errors.New("message must have content")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Message{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		Author:  author,
		Kind:    kind,
		Content: content,
		ReplyTo: replyTo,
		SentAt:  now.UTC(),
	}, nil
}

// NewSystemMessage builds an engine-generated notice for a room.
func NewSystemMessage(roomID, content string, now time.Time) Message {
	return Message{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		Author:  SystemAuthor,
		Kind:    MessageKindSystem,
		Content: content,
		SentAt:  now.UTC(),
	}
}
