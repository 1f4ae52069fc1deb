package ws

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"zvonok/internal/models"
	"zvonok/internal/presence"
	"zvonok/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T) (*Hub, *storage.BboltStorage) {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "hub_test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := NewHub(presence.NewRegistry(), store, nil, prometheus.NewRegistry(), zap.NewNop())
	return h, store
}

func recvEvent(t *testing.T, ch chan models.ServerEvent) models.ServerEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for event")
		return models.ServerEvent{}
	}
}

func expectSilence(t *testing.T, ch chan models.ServerEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_SendMessage(t *testing.T) {
	h, _ := newTestHub(t)

	ch1 := h.Join(1, "conn-a")
	ch2 := h.Join(2, "conn-b")

	h.Dispatch(1, models.ClientEvent{
		Event:      models.EventSendMessage,
		SenderID:   1,
		ReceiverID: 2,
		Text:       "hi",
	})

	got := recvEvent(t, ch2)
	if got.Event != models.EventReceiveMessage {
		t.Fatalf("expected receiveMessage, got %s", got.Event)
	}
	if got.Message == nil {
		t.Fatal("event carries no message")
	}
	if got.Message.Text != "hi" || got.Message.SenderID != 1 {
		t.Errorf("unexpected message: %+v", got.Message)
	}
	if got.Message.ID == 0 || got.Message.CreatedAt == 0 || got.Message.ChatID == "" {
		t.Errorf("message missing store-assigned fields: %+v", got.Message)
	}

	// Sender's own group gets the echo.
	echo := recvEvent(t, ch1)
	if echo.Event != models.EventMessageSent {
		t.Fatalf("expected messageSent echo, got %s", echo.Event)
	}
	if echo.Message.ID != got.Message.ID {
		t.Errorf("echo carries different message id: %d vs %d", echo.Message.ID, got.Message.ID)
	}

	// History returns the single message, ordered.
	h.Dispatch(1, models.ClientEvent{Event: models.EventGetMessages, ReceiverID: 2})
	history := recvEvent(t, ch1)
	if history.Event != models.EventMessages {
		t.Fatalf("expected messages, got %s", history.Event)
	}
	if len(history.Messages) != 1 || history.Messages[0].Text != "hi" {
		t.Errorf("unexpected history: %+v", history.Messages)
	}
}

func TestHub_SendMessage_ReusesChat(t *testing.T) {
	h, _ := newTestHub(t)

	ch1 := h.Join(1, "conn-a")
	ch2 := h.Join(2, "conn-b")

	h.Dispatch(1, models.ClientEvent{Event: models.EventSendMessage, ReceiverID: 2, Text: "one"})
	first := recvEvent(t, ch2)
	recvEvent(t, ch1) // drain echo

	// Replying goes into the same chat regardless of direction.
	h.Dispatch(2, models.ClientEvent{Event: models.EventSendMessage, ReceiverID: 1, Text: "two"})
	recvEvent(t, ch2) // u2's own echo
	second := recvEvent(t, ch1)

	if second.Event != models.EventReceiveMessage || second.Message == nil {
		t.Fatalf("reply not delivered: %+v", second)
	}
	if second.Message.ChatID != first.Message.ChatID {
		t.Errorf("reply created a second chat: %s vs %s",
			second.Message.ChatID, first.Message.ChatID)
	}
	if second.Message.ID <= first.Message.ID {
		t.Errorf("message ids not increasing: %d then %d", first.Message.ID, second.Message.ID)
	}
}

func TestHub_SendMessage_SanitizesText(t *testing.T) {
	h, _ := newTestHub(t)

	h.Join(1, "conn-a")
	ch2 := h.Join(2, "conn-b")

	h.Dispatch(1, models.ClientEvent{
		Event:      models.EventSendMessage,
		ReceiverID: 2,
		Text:       `hello <script>alert("x")</script>`,
	})

	got := recvEvent(t, ch2)
	if got.Message.Text != "hello" {
		t.Errorf("expected sanitized text, got %q", got.Message.Text)
	}

	// A message that sanitizes to nothing is dropped entirely.
	h.Dispatch(1, models.ClientEvent{
		Event:      models.EventSendMessage,
		ReceiverID: 2,
		Text:       `<script>alert("x")</script>`,
	})
	expectSilence(t, ch2)
}

func TestHub_SendMessage_DenormalizesSender(t *testing.T) {
	h, store := newTestHub(t)

	if err := store.UpsertUser(models.User{ID: 1, Name: "Alice", ProfilePic: "http://example.com/a.png"}); err != nil {
		t.Fatal(err)
	}

	h.Join(1, "conn-a")
	ch2 := h.Join(2, "conn-b")

	h.Dispatch(1, models.ClientEvent{Event: models.EventSendMessage, ReceiverID: 2, Text: "hi"})

	got := recvEvent(t, ch2)
	if got.Message.Sender == nil {
		t.Fatal("expected denormalized sender")
	}
	if got.Message.Sender.Name != "Alice" {
		t.Errorf("unexpected sender: %+v", got.Message.Sender)
	}
}

func TestHub_GetMessages_NoChat(t *testing.T) {
	h, _ := newTestHub(t)

	ch1 := h.Join(1, "conn-a")
	h.Dispatch(1, models.ClientEvent{Event: models.EventGetMessages, ReceiverID: 2})

	got := recvEvent(t, ch1)
	if got.Event != models.EventMessages {
		t.Fatalf("expected messages, got %s", got.Event)
	}
	if len(got.Messages) != 0 {
		t.Errorf("expected empty history, got %+v", got.Messages)
	}
}

func TestHub_DeleteMessage_NonSenderRejected(t *testing.T) {
	h, store := newTestHub(t)

	ch1 := h.Join(1, "conn-a")
	ch2 := h.Join(2, "conn-b")

	h.Dispatch(1, models.ClientEvent{Event: models.EventSendMessage, ReceiverID: 2, Text: "keep me"})
	msg := recvEvent(t, ch2).Message
	recvEvent(t, ch1) // drain echo

	// The receiver tries to delete the sender's message.
	h.Dispatch(2, models.ClientEvent{
		Event:      models.EventDeleteMessage,
		MessageID:  msg.ID,
		ReceiverID: 1,
	})

	expectSilence(t, ch1)
	expectSilence(t, ch2)

	if _, err := store.GetMessage(msg.ChatID, msg.ID); err != nil {
		t.Errorf("message should survive unauthorized delete: %v", err)
	}
}

func TestHub_DeleteMessage_BySender(t *testing.T) {
	h, store := newTestHub(t)

	ch1 := h.Join(1, "conn-a")
	ch2 := h.Join(2, "conn-b")

	h.Dispatch(1, models.ClientEvent{Event: models.EventSendMessage, ReceiverID: 2, Text: "oops"})
	msg := recvEvent(t, ch2).Message
	recvEvent(t, ch1) // drain echo

	h.Dispatch(1, models.ClientEvent{
		Event:      models.EventDeleteMessage,
		MessageID:  msg.ID,
		ReceiverID: 2,
	})

	// Exactly one messageDeleted per active participant connection.
	for _, ch := range []chan models.ServerEvent{ch1, ch2} {
		got := recvEvent(t, ch)
		if got.Event != models.EventMessageDeleted {
			t.Fatalf("expected messageDeleted, got %s", got.Event)
		}
		if got.MessageID != msg.ID || got.ChatID != msg.ChatID {
			t.Errorf("unexpected payload: %+v", got)
		}
		expectSilence(t, ch)
	}

	if _, err := store.GetMessage(msg.ChatID, msg.ID); err == nil {
		t.Error("message should be gone after sender delete")
	}

	// Deleting again is a silent no-op.
	h.Dispatch(1, models.ClientEvent{
		Event:      models.EventDeleteMessage,
		MessageID:  msg.ID,
		ReceiverID: 2,
	})
	expectSilence(t, ch1)
	expectSilence(t, ch2)
}

func TestHub_DeleteAllConversation(t *testing.T) {
	h, store := newTestHub(t)

	ch1 := h.Join(1, "conn-a")
	ch2 := h.Join(2, "conn-b")

	h.Dispatch(1, models.ClientEvent{Event: models.EventSendMessage, ReceiverID: 2, Text: "one"})
	chatID := recvEvent(t, ch2).Message.ChatID
	recvEvent(t, ch1)
	h.Dispatch(1, models.ClientEvent{Event: models.EventSendMessage, ReceiverID: 2, Text: "two"})
	recvEvent(t, ch2)
	recvEvent(t, ch1)

	h.Dispatch(2, models.ClientEvent{Event: models.EventDeleteAllConversation, ReceiverID: 1})

	for _, ch := range []chan models.ServerEvent{ch1, ch2} {
		got := recvEvent(t, ch)
		if got.Event != models.EventConversationDeleted {
			t.Fatalf("expected conversationDeleted, got %s", got.Event)
		}
		if got.ChatID != chatID {
			t.Errorf("expected chat %s, got %s", chatID, got.ChatID)
		}
		expectSilence(t, ch)
	}

	msgs, err := store.ListMessages(chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected zero messages after clear, got %d", len(msgs))
	}

	// Clearing a pair with no chat is a no-op.
	h.Dispatch(1, models.ClientEvent{Event: models.EventDeleteAllConversation, ReceiverID: 99})
	expectSilence(t, ch1)
}

func TestHub_CallUser_Offline(t *testing.T) {
	h, _ := newTestHub(t)

	ch1 := h.Join(1, "conn-a")

	h.Dispatch(1, models.ClientEvent{
		Event:      models.EventCallUser,
		UserToCall: 2,
		SignalData: json.RawMessage(`{"type":"offer"}`),
		From:       1,
	})

	// Nobody rings: not the caller, and certainly not the absent callee.
	expectSilence(t, ch1)
}

func TestHub_CallSignaling(t *testing.T) {
	h, _ := newTestHub(t)

	ch1 := h.Join(1, "conn-a")
	ch2 := h.Join(2, "conn-b")

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0 caller"}`)
	h.Dispatch(1, models.ClientEvent{
		Event:          models.EventCallUser,
		UserToCall:     2,
		SignalData:     offer,
		From:           1,
		Name:           "Alice",
		IsVideoEnabled: true,
	})

	ring := recvEvent(t, ch2)
	if ring.Event != models.EventCallUser {
		t.Fatalf("expected callUser, got %s", ring.Event)
	}
	if string(ring.Signal) != string(offer) {
		t.Errorf("offer payload transformed: %s", ring.Signal)
	}
	if ring.From != 1 || ring.Name != "Alice" || !ring.IsVideoEnabled {
		t.Errorf("unexpected ring payload: %+v", ring)
	}

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0 callee"}`)
	h.Dispatch(2, models.ClientEvent{Event: models.EventAnswerCall, To: 1, Signal: answer})

	accepted := recvEvent(t, ch1)
	if accepted.Event != models.EventCallAccepted {
		t.Fatalf("expected callAccepted, got %s", accepted.Event)
	}
	if string(accepted.Signal) != string(answer) {
		t.Errorf("answer payload transformed: %s", accepted.Signal)
	}

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 UDP 123 10.0.0.1 4444 typ host"}`)
	h.Dispatch(1, models.ClientEvent{Event: models.EventICECandidate, To: 2, Candidate: candidate})
	ice := recvEvent(t, ch2)
	if ice.Event != models.EventICECandidate || string(ice.Candidate) != string(candidate) {
		t.Errorf("unexpected ice relay: %+v", ice)
	}

	h.Dispatch(1, models.ClientEvent{Event: models.EventToggleMedia, To: 2, Media: "video", Status: false})
	toggle := recvEvent(t, ch2)
	if toggle.Event != models.EventToggleMedia || toggle.Media != "video" || toggle.Status {
		t.Errorf("unexpected toggle relay: %+v", toggle)
	}

	h.Dispatch(2, models.ClientEvent{Event: models.EventEndCall, To: 1})
	ended := recvEvent(t, ch1)
	if ended.Event != models.EventCallEnded {
		t.Errorf("expected callEnded, got %s", ended.Event)
	}
}

func TestHub_BroadcastGroup_MultipleSessions(t *testing.T) {
	h, _ := newTestHub(t)

	// User 2 is connected twice; both sessions must receive delivery.
	h.Join(1, "conn-a")
	first := h.Join(2, "conn-b1")
	second := h.Join(2, "conn-b2")

	h.Dispatch(1, models.ClientEvent{Event: models.EventSendMessage, ReceiverID: 2, Text: "hi"})

	for _, ch := range []chan models.ServerEvent{first, second} {
		got := recvEvent(t, ch)
		if got.Event != models.EventReceiveMessage || got.Message.Text != "hi" {
			t.Errorf("session missed delivery: %+v", got)
		}
	}
}

func TestHub_Leave_StaleDisconnectKeepsNewerSession(t *testing.T) {
	h, _ := newTestHub(t)

	h.Join(1, "conn-a")
	h.Join(2, "conn-old")
	newer := h.Join(2, "conn-new")

	// The replaced session disconnects after the reconnect.
	h.Leave(2, "conn-old")

	// User 2 must still be reachable for calls and messages.
	h.Dispatch(1, models.ClientEvent{
		Event:      models.EventCallUser,
		UserToCall: 2,
		SignalData: json.RawMessage(`{"type":"offer"}`),
		From:       1,
	})
	got := recvEvent(t, newer)
	if got.Event != models.EventCallUser {
		t.Fatalf("expected callUser on newer session, got %s", got.Event)
	}
}

type captureNotifier struct {
	payloads chan []byte
}

func (n *captureNotifier) Notify(userID int64, payload []byte) {
	n.payloads <- payload
}

func TestHub_OfflineNudge_TruncatesOnRuneBoundary(t *testing.T) {
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "nudge_test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	notifier := &captureNotifier{payloads: make(chan []byte, 1)}
	h := NewHub(presence.NewRegistry(), store, notifier, prometheus.NewRegistry(), zap.NewNop())

	h.Join(1, "conn-a")

	// 151 bytes of text where byte 120 falls inside a multi-byte rune.
	h.Dispatch(1, models.ClientEvent{
		Event:      models.EventSendMessage,
		ReceiverID: 2,
		Text:       "a" + strings.Repeat("日", 50),
	})

	var payload []byte
	select {
	case payload = <-notifier.payloads:
	case <-time.After(1 * time.Second):
		t.Fatal("no push nudge for offline receiver")
	}

	var p struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if !utf8.ValidString(p.Body) {
		t.Errorf("body is not valid UTF-8: %q", p.Body)
	}
	if want := "a" + strings.Repeat("日", 39); p.Body != want {
		t.Errorf("expected body cut on rune boundary, got %q", p.Body)
	}
}

// A broadcast may snapshot a connection's delivery channel right
// before that connection leaves. The channel must stay open so the
// pending send lands in the buffer (or drops) instead of panicking.
func TestHub_Leave_KeepsDeliveryChannelOpen(t *testing.T) {
	h, _ := newTestHub(t)

	ch := h.Join(2, "conn-b")
	h.Leave(2, "conn-b")

	select {
	case ch <- models.ServerEvent{Event: models.EventCallEnded}:
	default:
		t.Fatal("delivery channel rejected send after leave")
	}
	if got, ok := <-ch; !ok {
		t.Fatal("delivery channel closed after leave")
	} else if got.Event != models.EventCallEnded {
		t.Fatalf("unexpected event after leave: %s", got.Event)
	}
}

func TestHub_BroadcastDuringDisconnect(t *testing.T) {
	h, _ := newTestHub(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					h.broadcast(2, models.ServerEvent{Event: models.EventCallEnded})
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		h.Join(2, "conn-x")
		h.Leave(2, "conn-x")
	}
	close(stop)
	wg.Wait()
}

func TestHub_RegisterPush(t *testing.T) {
	h, store := newTestHub(t)

	h.Join(1, "conn-a")
	sub := json.RawMessage(`{"endpoint":"https://push.example.com/abc","keys":{"auth":"a","p256dh":"b"}}`)
	h.Dispatch(1, models.ClientEvent{Event: models.EventRegisterPush, Subscription: sub})

	stored, err := store.GetPushSubscription(1)
	if err != nil {
		t.Fatalf("subscription not stored: %v", err)
	}
	if string(stored) != string(sub) {
		t.Errorf("stored subscription differs: %s", stored)
	}
}
