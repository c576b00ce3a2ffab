package models

import "fmt"

const (
	ChatRoomsCollection = "chatrooms"
	MessagesCollection  = "messages"
	UsersCollection     = "users"
)

const (
	// ClickActionFlutter routes a tapped notification to the Flutter client's handler.
	ClickActionFlutter = "FLUTTER_NOTIFICATION_CLICK"
	DefaultSound       = "default"

	titleFormat = "%s님이 메시지를 보냈습니다."
)

type RoomStatus string

const (
	RoomConnected    RoomStatus = "connected"
	RoomDisconnected RoomStatus = "disconnected"
)

// ChatRoom is a document of the chatrooms collection.
type ChatRoom struct {
	Users  []string   `firestore:"users" json:"users"`
	Status RoomStatus `firestore:"status" json:"status"`
}

// ChatMessage is a document of chatrooms/{roomId}/messages.
type ChatMessage struct {
	AuthorID   string `firestore:"authorId" json:"authorId"`
	AuthorName string `firestore:"authorName" json:"authorName"`
	Text       string `firestore:"text" json:"text"`
}

type UserProfile struct {
	FCMToken string `firestore:"fcmToken" json:"fcmToken"`
}

// PushNotification is built per dispatch and never persisted.
type PushNotification struct {
	Token       string
	Title       string
	Body        string
	Sound       string
	ClickAction string
	Data        map[string]string
}

func NotificationTitle(authorName string) string {
	return fmt.Sprintf(titleFormat, authorName)
}
