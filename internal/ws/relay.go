package ws

import (
	"encoding/json"
	"errors"
	"unicode/utf8"

	"zvonok/internal/content"
	"zvonok/internal/models"

	"go.uber.org/zap"
)

// sendMessage resolves or creates the private chat for the pair,
// persists the message and delivers it to the receiver's group. The
// sender's own group gets a messageSent echo so all of the sender's
// sessions converge. Failures are logged and dropped; messaging is
// best-effort and nothing is retried.
func (h *Hub) sendMessage(userID int64, ev models.ClientEvent) {
	senderID := ev.SenderID
	if senderID == 0 {
		senderID = userID
	}
	receiverID := ev.ReceiverID

	text := content.Sanitize(ev.Text)
	if text == "" || receiverID == 0 {
		h.log.Debug("dropping empty or unaddressed message",
			zap.Int64("sender_id", senderID))
		return
	}

	chat, err := h.store.EnsurePrivateChat(senderID, receiverID)
	if err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to resolve chat",
			zap.Int64("sender_id", senderID), zap.Int64("receiver_id", receiverID), zap.Error(err))
		return
	}

	msg, err := h.store.CreateMessage(chat.ID, senderID, text)
	if err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to persist message",
			zap.String("chat_id", chat.ID), zap.Int64("sender_id", senderID), zap.Error(err))
		return
	}
	h.attachSender(&msg)
	h.metrics.recordMessage()

	h.broadcast(receiverID, models.ServerEvent{
		Event:   models.EventReceiveMessage,
		Message: &msg,
	})
	h.broadcast(senderID, models.ServerEvent{
		Event:   models.EventMessageSent,
		Message: &msg,
	})

	if _, online := h.registry.Lookup(receiverID); !online {
		h.nudge(receiverID, &msg)
	}
}

// getMessages returns the ordered history of the pair's chat to the
// requester's group. A pair with no chat yet gets an empty list.
func (h *Hub) getMessages(userID int64, ev models.ClientEvent) {
	chat, err := h.store.FindPrivateChat(userID, ev.ReceiverID)
	if errors.Is(err, models.ErrNotFound) {
		h.broadcast(userID, models.ServerEvent{
			Event:    models.EventMessages,
			Messages: []models.Message{},
		})
		return
	}
	if err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to resolve chat",
			zap.Int64("user_id", userID), zap.Int64("receiver_id", ev.ReceiverID), zap.Error(err))
		return
	}

	msgs, err := h.store.ListMessages(chat.ID)
	if err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to list messages",
			zap.String("chat_id", chat.ID), zap.Error(err))
		return
	}
	for i := range msgs {
		h.attachSender(&msgs[i])
	}

	h.broadcast(userID, models.ServerEvent{
		Event:    models.EventMessages,
		ChatID:   chat.ID,
		Messages: msgs,
	})
}

// attachSender denormalizes the sender's display attributes onto the
// message. A sender with no user row is delivered without them.
func (h *Hub) attachSender(msg *models.Message) {
	sender, err := h.store.GetUser(msg.SenderID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			h.log.Warn("failed to load sender",
				zap.Int64("sender_id", msg.SenderID), zap.Error(err))
		}
		return
	}
	msg.Sender = &sender
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// nudge fires a web push at an offline receiver. The message is
// already persisted; this only wakes the client up.
func (h *Hub) nudge(receiverID int64, msg *models.Message) {
	if h.notifier == nil {
		return
	}

	title := "New message"
	if msg.Sender != nil && msg.Sender.Name != "" {
		title = msg.Sender.Name
	}
	body := msg.Text
	if len(body) > 120 {
		cut := 120
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	payload, err := json.Marshal(pushPayload{Title: title, Body: body})
	if err != nil {
		return
	}

	h.metrics.recordPushNudge()
	go h.notifier.Notify(receiverID, payload)
}
