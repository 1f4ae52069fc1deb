package ws

import (
	"zvonok/internal/models"

	"go.uber.org/zap"
)

// Call signaling is a stateless relay: destinations come from the
// payload, payloads pass through untouched, and no call phase is
// tracked or validated here. Ordering correctness belongs to the
// clients driving the call.

// callUser rings the callee. If the callee has no live connection the
// call silently fails to ring; the caller's own timeout handles it.
func (h *Hub) callUser(userID int64, ev models.ClientEvent) {
	callee := ev.UserToCall

	if _, online := h.registry.Lookup(callee); !online {
		h.metrics.recordUnreachableCall()
		h.log.Info("call to offline user",
			zap.Int64("caller_id", userID), zap.Int64("callee_id", callee))
		return
	}

	h.metrics.recordSignal(string(models.EventCallUser))
	h.broadcast(callee, models.ServerEvent{
		Event:          models.EventCallUser,
		Signal:         ev.SignalData,
		From:           ev.From,
		Name:           ev.Name,
		IsVideoEnabled: ev.IsVideoEnabled,
	})
}

// answerCall relays the callee's answer back to the caller. No
// presence check: a caller who vanished between ringing and answering
// makes this a silent no-op.
func (h *Hub) answerCall(userID int64, ev models.ClientEvent) {
	h.metrics.recordSignal(string(models.EventAnswerCall))
	h.broadcast(ev.To, models.ServerEvent{
		Event:  models.EventCallAccepted,
		Signal: ev.Signal,
	})
}

// iceCandidate relays a network candidate. ICE exchange tolerates
// loss, so no delivery guarantee is attempted.
func (h *Hub) iceCandidate(userID int64, ev models.ClientEvent) {
	h.metrics.recordSignal(string(models.EventICECandidate))
	h.broadcast(ev.To, models.ServerEvent{
		Event:     models.EventICECandidate,
		Candidate: ev.Candidate,
	})
}

// toggleMedia synchronizes the remote party's muted/camera-off
// indicators.
func (h *Hub) toggleMedia(userID int64, ev models.ClientEvent) {
	h.metrics.recordSignal(string(models.EventToggleMedia))
	h.broadcast(ev.To, models.ServerEvent{
		Event:  models.EventToggleMedia,
		Media:  ev.Media,
		Status: ev.Status,
	})
}

// endCall tells the remote party to tear down its peer connection.
func (h *Hub) endCall(userID int64, ev models.ClientEvent) {
	h.metrics.recordSignal(string(models.EventEndCall))
	h.broadcast(ev.To, models.ServerEvent{
		Event: models.EventCallEnded,
	})
}
