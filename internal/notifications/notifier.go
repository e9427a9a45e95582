// Package notifications publishes social graph events to per-user Redis channels.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"askallery/internal/middleware"
	"askallery/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Event types published after a ledger mutation commits.
const (
	EventUserFollowed = "user_followed"
	EventPostLiked    = "post_liked"
	EventCommentLiked = "comment_liked"
	EventCommentAdded = "comment_added"
)

// Event is the JSON envelope delivered on a user channel.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// A nil client turns every publish into a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishUser sends an event to a user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, eventType string, payload map[string]any) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	body, err := json.Marshal(Event{Type: eventType, Payload: payload, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := n.rdb.Publish(ctx, UserChannel(userID), body).Err(); err != nil {
		return err
	}
	observability.NotificationsPublished.WithLabelValues(eventType).Inc()
	return nil
}

// SubscribeUser delivers every payload published on userID's channel to
// onMessage until ctx is cancelled. The returned channel closes when the
// subscription ends.
func (n *Notifier) SubscribeUser(ctx context.Context, userID uint, onMessage func(payload string)) (<-chan struct{}, error) {
	done := make(chan struct{})
	if n == nil || n.rdb == nil {
		close(done)
		return done, nil
	}

	sub := n.rdb.Subscribe(ctx, UserChannel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		close(done)
		return done, fmt.Errorf("subscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer close(done)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in notification subscriber",
								"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
						}
					}()
					onMessage(msg.Payload)
				}()
			}
		}
	}()

	return done, nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return "notifications:user:" + strconv.FormatUint(uint64(userID), 10)
}
