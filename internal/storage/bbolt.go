package storage

import (
	"errors"
	"fmt"
	"time"

	"zvonok/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers     = []byte("users")
	bucketChats     = []byte("chats")
	bucketChatIndex = []byte("chat_index")
	bucketMembers   = []byte("members")
	bucketMessages  = []byte("messages")
	bucketPushSubs  = []byte("push_subscriptions")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketUsers,
			bucketChats,
			bucketChatIndex,
			bucketMembers,
			bucketMessages,
			bucketPushSubs,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertUser stores new or updated user display attributes.
func (s *BboltStorage) UpsertUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		dbUser := &DBUser{
			ID:         user.ID,
			Name:       user.Name,
			ProfilePic: user.ProfilePic,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
}

// GetUser returns the display attributes for a user identity.
func (s *BboltStorage) GetUser(id int64) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get(userKey(id))
		if data == nil {
			return models.ErrNotFound
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = models.User{
			ID:         dbUser.ID,
			Name:       dbUser.Name,
			ProfilePic: dbUser.ProfilePic,
		}
		return nil
	})
	return user, err
}

// EnsurePrivateChat returns the private chat between the two
// identities, creating it with both memberships if it does not exist.
// The lookup and create run in one write transaction keyed by the
// sorted member pair, so concurrent first messages between the same
// pair cannot produce duplicate chats.
func (s *BboltStorage) EnsurePrivateChat(a, b int64) (models.Chat, error) {
	var chat models.Chat
	err := s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketChatIndex)
		key := pairKey(a, b)

		if chatID := idx.Get(key); chatID != nil {
			found, err := getChat(tx, string(chatID))
			if err != nil {
				return err
			}
			chat = found
			return nil
		}

		dbChat := &DBChat{
			ID:        uuid.NewString(),
			Type:      string(models.ChatTypePrivate),
			CreatedAt: s.now().Unix(),
		}
		data, err := dbChat.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketChats).Put(dbChat.Key(), data); err != nil {
			return err
		}

		memberBucket, err := tx.Bucket(bucketMembers).CreateBucketIfNotExists([]byte(dbChat.ID))
		if err != nil {
			return fmt.Errorf("failed to create member bucket: %w", err)
		}
		for _, userID := range []int64{a, b} {
			member := &DBMember{
				ChatID: dbChat.ID,
				UserID: userID,
				Role:   string(models.MemberRoleMember),
			}
			data, err := member.MarshalBinary()
			if err != nil {
				return err
			}
			if err := memberBucket.Put(member.Key(), data); err != nil {
				return err
			}
		}

		if err := idx.Put(key, []byte(dbChat.ID)); err != nil {
			return err
		}

		chat = models.Chat{
			ID:        dbChat.ID,
			Type:      models.ChatType(dbChat.Type),
			CreatedAt: dbChat.CreatedAt,
		}
		return nil
	})
	return chat, err
}

// FindPrivateChat returns the private chat between the two identities,
// or models.ErrNotFound if none exists.
func (s *BboltStorage) FindPrivateChat(a, b int64) (models.Chat, error) {
	var chat models.Chat
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatID := tx.Bucket(bucketChatIndex).Get(pairKey(a, b))
		if chatID == nil {
			return models.ErrNotFound
		}
		found, err := getChat(tx, string(chatID))
		if err != nil {
			return err
		}
		chat = found
		return nil
	})
	return chat, err
}

// ListMembers returns the memberships of a chat.
func (s *BboltStorage) ListMembers(chatID string) ([]models.ChatMember, error) {
	var members []models.ChatMember
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMembers).Bucket([]byte(chatID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var member DBMember
			if err := member.UnmarshalBinary(v); err != nil {
				return err
			}
			members = append(members, models.ChatMember{
				ChatID: member.ChatID,
				UserID: member.UserID,
				Role:   models.MemberRole(member.Role),
			})
			return nil
		})
	})
	return members, err
}

// CreateMessage persists a new message on the chat. The store assigns
// the identifier (per-chat sequence) and the creation timestamp.
func (s *BboltStorage) CreateMessage(chatID string, senderID int64, text string) (models.Message, error) {
	var message models.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if chatID == "" {
			return errors.New("message missing chatID")
		}

		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(chatID))
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to assign message id: %w", err)
		}

		dbMessage := DBMessage{
			ID:        seq,
			ChatID:    chatID,
			SenderID:  senderID,
			Text:      text,
			CreatedAt: s.now().Unix(),
		}
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := chatBucket.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		message = messageFromDB(dbMessage)
		return nil
	})
	return message, err
}

// ListMessages returns all messages of a chat ordered by identifier,
// which matches creation order.
func (s *BboltStorage) ListMessages(chatID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil // No messages for this chat
		}
		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, messageFromDB(dbMsg))
			return nil
		})
	})
	return messages, err
}

// GetMessage returns a single message by identifier, or
// models.ErrNotFound if it does not exist.
func (s *BboltStorage) GetMessage(chatID string, id uint64) (models.Message, error) {
	var message models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return models.ErrNotFound
		}
		lookup := DBMessage{ID: id}
		data := chatBucket.Get(lookup.Key())
		if data == nil {
			return models.ErrNotFound
		}
		var dbMsg DBMessage
		if err := dbMsg.UnmarshalBinary(data); err != nil {
			return err
		}
		message = messageFromDB(dbMsg)
		return nil
	})
	return message, err
}

// DeleteMessage removes a single message. Deleting a message that does
// not exist is a no-op.
func (s *BboltStorage) DeleteMessage(chatID string, id uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil
		}
		lookup := DBMessage{ID: id}
		return chatBucket.Delete(lookup.Key())
	})
}

// DeleteChatMessages removes every message of a chat. The chat row and
// its memberships survive; the next message between the pair reuses
// them. Keys are deleted in place rather than dropping the bucket so
// the sequence survives and later messages never reuse an identifier.
func (s *BboltStorage) DeleteChatMessages(chatID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil
		}
		c := chatBucket.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertPushSubscription stores the receiver's web push subscription.
func (s *BboltStorage) UpsertPushSubscription(userID int64, subscription []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sub := &DBPushSubscription{
			UserID:       userID,
			Subscription: subscription,
		}
		data, err := sub.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPushSubs).Put(sub.Key(), data)
	})
}

// GetPushSubscription returns the stored subscription for a user, or
// models.ErrNotFound.
func (s *BboltStorage) GetPushSubscription(userID int64) ([]byte, error) {
	var subscription []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPushSubs).Get(userKey(userID))
		if data == nil {
			return models.ErrNotFound
		}
		var sub DBPushSubscription
		if err := sub.UnmarshalBinary(data); err != nil {
			return err
		}
		subscription = sub.Subscription
		return nil
	})
	return subscription, err
}

// DeletePushSubscription drops a subscription, e.g. after the push
// service reports it gone.
func (s *BboltStorage) DeletePushSubscription(userID int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPushSubs).Delete(userKey(userID))
	})
}

func getChat(tx *bbolt.Tx, chatID string) (models.Chat, error) {
	data := tx.Bucket(bucketChats).Get([]byte(chatID))
	if data == nil {
		return models.Chat{}, fmt.Errorf("chat %s missing for index entry", chatID)
	}
	var dbChat DBChat
	if err := dbChat.UnmarshalBinary(data); err != nil {
		return models.Chat{}, err
	}
	return models.Chat{
		ID:        dbChat.ID,
		Type:      models.ChatType(dbChat.Type),
		CreatedAt: dbChat.CreatedAt,
	}, nil
}

func messageFromDB(m DBMessage) models.Message {
	return models.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}
