package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yuju-k/happy-wave/internal/models"
)

var ErrUnexpectedDocument = errors.New("document is not a chat message")

// MessageCreatedEvent is published on the queue by the chat backend after it
// writes a message document.
type MessageCreatedEvent struct {
	RoomID    string             `json:"roomId"`
	MessageID string             `json:"messageId"`
	Message   models.ChatMessage `json:"message"`
	CreatedAt time.Time          `json:"createdAt"`
}

type UpdateMask struct {
	FieldPaths []string `json:"fieldPaths"`
}

// FirestoreEvent is the payload of a Firestore document trigger.
type FirestoreEvent struct {
	OldValue   FirestoreValue `json:"oldValue"`
	Value      FirestoreValue `json:"value"`
	UpdateMask UpdateMask     `json:"updateMask"`
}

type FirestoreValue struct {
	CreateTime time.Time     `json:"createTime"`
	Fields     MessageFields `json:"fields"`
	Name       string        `json:"name"`
	UpdateTime time.Time     `json:"updateTime"`
}

type MessageFields struct {
	AuthorID   StringValue `json:"authorId"`
	AuthorName StringValue `json:"authorName"`
	Text       StringValue `json:"text"`
}

type StringValue struct {
	Value string `json:"stringValue"`
}

func (e FirestoreEvent) ChatMessage() models.ChatMessage {
	return models.ChatMessage{
		AuthorID:   e.Value.Fields.AuthorID.Value,
		AuthorName: e.Value.Fields.AuthorName.Value,
		Text:       e.Value.Fields.Text.Value,
	}
}

// MessageCreated converts the trigger payload into the queue event shape.
func (e FirestoreEvent) MessageCreated() (MessageCreatedEvent, error) {
	roomID, messageID, err := RoomAndMessageID(e.Value.Name)
	if err != nil {
		return MessageCreatedEvent{}, err
	}
	return MessageCreatedEvent{
		RoomID:    roomID,
		MessageID: messageID,
		Message:   e.ChatMessage(),
		CreatedAt: e.Value.CreateTime,
	}, nil
}

// RoomAndMessageID extracts the ids from a document name such as
// projects/p/databases/(default)/documents/chatrooms/{roomId}/messages/{messageId}.
// A path relative to the database root is accepted too.
func RoomAndMessageID(name string) (string, string, error) {
	path := name
	if i := strings.Index(path, "/documents/"); i >= 0 {
		path = path[i+len("/documents/"):]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 ||
		parts[0] != models.ChatRoomsCollection ||
		parts[2] != models.MessagesCollection ||
		parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%q: %w", name, ErrUnexpectedDocument)
	}
	return parts[1], parts[3], nil
}
