package ws

import (
	"sync"

	"zvonok/internal/models"
	"zvonok/internal/presence"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Store is the conversation store the relay depends on. The durable
// engine behind it is an external collaborator; the hub only calls it.
type Store interface {
	EnsurePrivateChat(a, b int64) (models.Chat, error)
	FindPrivateChat(a, b int64) (models.Chat, error)
	CreateMessage(chatID string, senderID int64, text string) (models.Message, error)
	ListMessages(chatID string) ([]models.Message, error)
	GetMessage(chatID string, id uint64) (models.Message, error)
	DeleteMessage(chatID string, id uint64) error
	DeleteChatMessages(chatID string) error
	GetUser(id int64) (models.User, error)
	UpsertPushSubscription(userID int64, subscription []byte) error
}

// Notifier nudges a user who has no live connection. Implementations
// must tolerate a nil receiver.
type Notifier interface {
	Notify(userID int64, payload []byte)
}

// Hub routes events between connected users. Delivery is addressed to
// broadcast groups keyed by user identity, so every live session of a
// user receives the same events in send order.
type Hub struct {
	registry presence.Registry
	store    Store
	notifier Notifier
	metrics  *relayMetrics
	log      *zap.Logger

	// Map of userID -> connID -> outbound event channel
	groups map[int64]map[string]chan models.ServerEvent

	mu sync.RWMutex
}

func NewHub(registry presence.Registry, store Store, notifier Notifier, reg prometheus.Registerer, log *zap.Logger) *Hub {
	return &Hub{
		registry: registry,
		store:    store,
		notifier: notifier,
		metrics:  newRelayMetrics(reg),
		log:      log,
		groups:   make(map[int64]map[string]chan models.ServerEvent),
	}
}

// Join registers the connection in the presence registry (last
// connection wins) and adds it to the user's broadcast group. The
// returned channel carries events addressed to the user.
func (h *Hub) Join(userID int64, connID string) chan models.ServerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registry.Register(userID, connID)

	ch := make(chan models.ServerEvent, 100)
	if h.groups[userID] == nil {
		h.groups[userID] = make(map[string]chan models.ServerEvent)
	}
	h.groups[userID][connID] = ch

	h.metrics.incConnection()
	h.log.Info("user connected",
		zap.Int64("user_id", userID), zap.String("conn_id", connID))

	return ch
}

// Leave removes the connection from the user's broadcast group and
// clears the presence entry, but only if it still names this
// connection: a user who reconnected elsewhere keeps the newer entry.
// The delivery channel is never closed: a broadcast that snapshotted it
// before the disconnect may still send, and the owning connection's
// loops exit through context cancellation instead.
func (h *Hub) Leave(userID int64, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[userID]
	if !ok {
		return
	}
	if _, ok := group[connID]; !ok {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.groups, userID)
	}

	h.registry.Unregister(userID, connID)

	h.metrics.decConnection()
	h.log.Info("user disconnected",
		zap.Int64("user_id", userID), zap.String("conn_id", connID))
}

// Dispatch routes one inbound event to its handler. Every inbound kind
// is handled here; adding a kind means adding a case.
func (h *Hub) Dispatch(userID int64, ev models.ClientEvent) {
	switch ev.Event {
	case models.EventSendMessage:
		h.sendMessage(userID, ev)
	case models.EventGetMessages:
		h.getMessages(userID, ev)
	case models.EventDeleteMessage:
		h.deleteMessage(userID, ev)
	case models.EventDeleteAllConversation:
		h.deleteAllConversation(userID, ev)
	case models.EventCallUser:
		h.callUser(userID, ev)
	case models.EventAnswerCall:
		h.answerCall(userID, ev)
	case models.EventICECandidate:
		h.iceCandidate(userID, ev)
	case models.EventToggleMedia:
		h.toggleMedia(userID, ev)
	case models.EventEndCall:
		h.endCall(userID, ev)
	case models.EventRegisterPush:
		h.registerPush(userID, ev)
	default:
		h.log.Debug("unknown event kind",
			zap.Int64("user_id", userID), zap.String("event", string(ev.Event)))
	}
}

// registerPush stores the connection owner's web push subscription for
// the offline nudge.
func (h *Hub) registerPush(userID int64, ev models.ClientEvent) {
	if len(ev.Subscription) == 0 {
		return
	}
	if err := h.store.UpsertPushSubscription(userID, ev.Subscription); err != nil {
		h.metrics.recordStoreError()
		h.log.Error("failed to store push subscription",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

// broadcast delivers an event to every live connection of the user.
// Sends never block: a connection that cannot keep up loses events
// rather than stalling the relay.
func (h *Hub) broadcast(userID int64, ev models.ServerEvent) {
	h.mu.RLock()
	chans := make([]chan models.ServerEvent, 0, len(h.groups[userID]))
	for _, ch := range h.groups[userID] {
		chans = append(chans, ch)
	}
	h.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
			h.log.Warn("dropping event for slow connection",
				zap.Int64("user_id", userID), zap.String("event", string(ev.Event)))
		}
	}
}
