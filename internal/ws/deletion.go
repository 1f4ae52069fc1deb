package ws

import (
	"errors"

	"zvonok/internal/models"

	"go.uber.org/zap"
)

// deleteMessage removes a single message. Only the original sender may
// delete; anything else is dropped without a broadcast. Deleting a
// message that is already gone is a no-op.
func (h *Hub) deleteMessage(userID int64, ev models.ClientEvent) {
	chat, err := h.store.FindPrivateChat(userID, ev.ReceiverID)
	if errors.Is(err, models.ErrNotFound) {
		return
	}
	if err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to resolve chat",
			zap.Int64("user_id", userID), zap.Int64("receiver_id", ev.ReceiverID), zap.Error(err))
		return
	}

	msg, err := h.store.GetMessage(chat.ID, ev.MessageID)
	if errors.Is(err, models.ErrNotFound) {
		return
	}
	if err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to fetch message",
			zap.String("chat_id", chat.ID), zap.Uint64("message_id", ev.MessageID), zap.Error(err))
		return
	}

	if msg.SenderID != userID {
		h.metrics.recordUnauthorizedDelete()
		h.log.Warn("delete rejected: requester is not the sender",
			zap.Int64("requester_id", userID),
			zap.Int64("sender_id", msg.SenderID),
			zap.Uint64("message_id", ev.MessageID))
		return
	}

	if err := h.store.DeleteMessage(chat.ID, ev.MessageID); err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to delete message",
			zap.String("chat_id", chat.ID), zap.Uint64("message_id", ev.MessageID), zap.Error(err))
		return
	}

	deleted := models.ServerEvent{
		Event:     models.EventMessageDeleted,
		MessageID: ev.MessageID,
		ChatID:    chat.ID,
	}
	// Both parties' groups, so the requester's other sessions converge too.
	h.broadcast(ev.ReceiverID, deleted)
	h.broadcast(userID, deleted)
}

// deleteAllConversation clears every message between the pair. The
// chat row itself survives empty.
func (h *Hub) deleteAllConversation(userID int64, ev models.ClientEvent) {
	chat, err := h.store.FindPrivateChat(userID, ev.ReceiverID)
	if errors.Is(err, models.ErrNotFound) {
		return
	}
	if err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to resolve chat",
			zap.Int64("user_id", userID), zap.Int64("receiver_id", ev.ReceiverID), zap.Error(err))
		return
	}

	if err := h.store.DeleteChatMessages(chat.ID); err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to clear chat",
			zap.String("chat_id", chat.ID), zap.Error(err))
		return
	}

	cleared := models.ServerEvent{
		Event:  models.EventConversationDeleted,
		ChatID: chat.ID,
	}
	h.broadcast(ev.ReceiverID, cleared)
	h.broadcast(userID, cleared)
}
