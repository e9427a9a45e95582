package server

import (
	"context"
	"time"

	"askallery/internal/middleware"
	"askallery/internal/models"
	"askallery/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// NotificationStreamHandler upgrades to a websocket and forwards every event
// published on the caller's notification channel. Client frames are read and
// discarded; a read error ends the stream.
func (s *Server) NotificationStreamHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		observability.NotificationStreams.Inc()
		defer observability.NotificationStreams.Dec()

		userID, ok := conn.Locals("userID").(uint)
		if !ok {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		ctx, cancel := context.WithCancel(s.streamContext())
		defer cancel()

		s.presence.Register(ctx, userID)
		defer s.presence.Unregister(context.Background(), userID)

		outbound := make(chan string, 16)
		done, err := s.notifier.SubscribeUser(ctx, userID, func(payload string) {
			select {
			case outbound <- payload:
			default:
				middleware.Logger.Warn("notification stream full, dropping event", "user_id", userID)
			}
		})
		if err != nil {
			middleware.Logger.Error("notification subscribe failed", "user_id", userID, "error", err.Error())
			_ = conn.Close()
			return
		}

		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()

		middleware.Logger.Info("notification stream opened", "user_id", userID)
		for {
			select {
			case <-ctx.Done():
				<-done
				_ = conn.Close()
				return
			case payload := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
				s.presence.Touch(ctx, userID)
			}
		}
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return models.RespondWithError(c, fiber.StatusUpgradeRequired,
				models.NewValidationError("Websocket upgrade required"))
		}
		return upgrade(c)
	}
}
