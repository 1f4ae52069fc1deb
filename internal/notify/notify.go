// Package notify sends a best-effort web push nudge to users who have
// no live connection when a message arrives for them. The message
// itself is already persisted; this is a wake-up, not delivery.
package notify

import (
	"encoding/json"
	"errors"
	"net/http"

	"zvonok/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// SubscriptionStore is the slice of the storage layer the pusher needs.
type SubscriptionStore interface {
	GetPushSubscription(userID int64) ([]byte, error)
	DeletePushSubscription(userID int64) error
}

type Pusher struct {
	store SubscriptionStore
	opts  webpush.Options
	log   *zap.Logger
}

// NewPusher builds a web push sender with the given VAPID key pair.
func NewPusher(store SubscriptionStore, subscriber, vapidPublicKey, vapidPrivateKey string, log *zap.Logger) *Pusher {
	return &Pusher{
		store: store,
		opts: webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  vapidPublicKey,
			VAPIDPrivateKey: vapidPrivateKey,
			TTL:             60,
		},
		log: log,
	}
}

// Notify pushes the payload to the user's registered subscription, if
// any. Failures are logged and swallowed; a subscription the push
// service reports gone is removed. Safe to call on a nil receiver
// (push disabled).
func (p *Pusher) Notify(userID int64, payload []byte) {
	if p == nil {
		return
	}

	raw, err := p.store.GetPushSubscription(userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			p.log.Error("failed to load push subscription",
				zap.Int64("user_id", userID), zap.Error(err))
		}
		return
	}

	var sub webpush.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		p.log.Warn("corrupt push subscription, dropping",
			zap.Int64("user_id", userID), zap.Error(err))
		_ = p.store.DeletePushSubscription(userID)
		return
	}

	resp, err := webpush.SendNotification(payload, &sub, &p.opts)
	if err != nil {
		p.log.Warn("push send failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		// Subscription expired or unsubscribed.
		_ = p.store.DeletePushSubscription(userID)
	}
}
