package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID         int64  `msgpack:"id"`
	Name       string `msgpack:"name"`
	ProfilePic string `msgpack:"profilePic"`
}

func (u *DBUser) Key() []byte {
	return userKey(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBChat struct {
	ID        string `msgpack:"id"`
	Type      string `msgpack:"type"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (c *DBChat) Key() []byte {
	return []byte(c.ID)
}

func (c *DBChat) MarshalBinary() (data []byte, err error) {
	type alias DBChat
	return msgpack.Marshal((*alias)(c))
}

func (c *DBChat) UnmarshalBinary(data []byte) error {
	type alias DBChat
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBMember struct {
	ChatID string `msgpack:"chatId"`
	UserID int64  `msgpack:"userId"`
	Role   string `msgpack:"role"`
}

func (m *DBMember) Key() []byte {
	return userKey(m.UserID)
}

func (m *DBMember) MarshalBinary() (data []byte, err error) {
	type alias DBMember
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMember) UnmarshalBinary(data []byte) error {
	type alias DBMember
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBMessage struct {
	ID        uint64 `msgpack:"id"`
	ChatID    string `msgpack:"chatId"`
	SenderID  int64  `msgpack:"senderId"`
	Text      string `msgpack:"text"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.ID)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBPushSubscription struct {
	UserID       int64  `msgpack:"userId"`
	Subscription []byte `msgpack:"subscription"`
}

func (p *DBPushSubscription) Key() []byte {
	return userKey(p.UserID)
}

func (p *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(p))
}

func userKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// pairKey builds the unordered member-pair index key. The lower
// identity always comes first, so both orderings of a pair map to the
// same key and at most one private chat can exist for it.
func pairKey(a, b int64) []byte {
	if b < a {
		a, b = b, a
	}
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(a))
	binary.BigEndian.PutUint64(key[8:], uint64(b))
	return key
}
