package models

import (
	"encoding/json"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
)

type ChatType string

const (
	ChatTypePrivate ChatType = "private"
)

type MemberRole string

const (
	MemberRoleMember MemberRole = "member"
)

// User holds the display attributes for an externally issued user
// identity. The relay only reads these rows, it never creates them.
type User struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// Chat is a durable conversation. This core only ever creates the
// private variant with exactly two members.
type Chat struct {
	ID        string   `json:"id"`
	Type      ChatType `json:"type"`
	CreatedAt int64    `json:"createdAt"` // Unix timestamp (seconds)
}

// ChatMember links a chat to a user identity. Created only at
// chat-creation time.
type ChatMember struct {
	ChatID string     `json:"chatId"`
	UserID int64      `json:"userId"`
	Role   MemberRole `json:"role"`
}

// Message is a persisted chat message. ID is the store-assigned
// per-chat sequence number, so messages order by ID within a chat.
type Message struct {
	ID        uint64 `json:"id"`
	ChatID    string `json:"chatId"`
	SenderID  int64  `json:"senderId"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"` // Unix timestamp (seconds)
	Sender    *User  `json:"sender,omitempty"`
}

// EventType names a websocket frame kind. Inbound kinds form a closed
// set dispatched through a single switch in the hub.
type EventType string

const (
	// client -> server
	EventSendMessage           EventType = "sendMessage"
	EventGetMessages           EventType = "getMessages"
	EventDeleteMessage         EventType = "deleteMessage"
	EventDeleteAllConversation EventType = "deleteAllConversation"
	EventCallUser              EventType = "callUser"
	EventAnswerCall            EventType = "answerCall"
	EventICECandidate          EventType = "ice-candidate"
	EventToggleMedia           EventType = "toggleMedia"
	EventEndCall               EventType = "endCall"
	EventRegisterPush          EventType = "registerPush"

	// server -> client
	EventReceiveMessage      EventType = "receiveMessage"
	EventMessageSent         EventType = "messageSent"
	EventMessages            EventType = "messages"
	EventMessageDeleted      EventType = "messageDeleted"
	EventConversationDeleted EventType = "conversationDeleted"
	EventCallAccepted        EventType = "callAccepted"
	EventCallEnded           EventType = "callEnded"
)

// ClientEvent is one frame read from a client connection. The Event
// field selects the kind, the rest is the flattened payload for that
// kind. Signaling payloads stay raw so the relay never reshapes them.
type ClientEvent struct {
	Event EventType `json:"event"`

	// sendMessage / getMessages / deleteMessage / deleteAllConversation
	SenderID   int64  `json:"senderId,omitempty"`
	ReceiverID int64  `json:"receiverId,omitempty"`
	Text       string `json:"text,omitempty"`
	MessageID  uint64 `json:"messageId,omitempty"`

	// callUser
	UserToCall     int64           `json:"userToCall,omitempty"`
	SignalData     json.RawMessage `json:"signalData,omitempty"`
	From           int64           `json:"from,omitempty"`
	Name           string          `json:"name,omitempty"`
	IsVideoEnabled bool            `json:"isVideoEnabled,omitempty"`

	// answerCall / ice-candidate / toggleMedia / endCall
	To        int64           `json:"to,omitempty"`
	Signal    json.RawMessage `json:"signal,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Media     string          `json:"media,omitempty"`
	Status    bool            `json:"status,omitempty"`

	// registerPush
	Subscription json.RawMessage `json:"subscription,omitempty"`
}

// ServerEvent is one frame written to a client connection.
type ServerEvent struct {
	Event EventType `json:"event"`

	Message  *Message  `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`

	MessageID uint64 `json:"messageId,omitempty"`
	ChatID    string `json:"chatId,omitempty"`

	Signal         json.RawMessage `json:"signal,omitempty"`
	From           int64           `json:"from,omitempty"`
	Name           string          `json:"name,omitempty"`
	IsVideoEnabled bool            `json:"isVideoEnabled,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`
	Media          string          `json:"media,omitempty"`
	Status         bool            `json:"status,omitempty"`
}
