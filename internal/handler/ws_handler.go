package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"convochat/internal/app/chat"
	"convochat/internal/pkg/errs"
	"convochat/internal/pkg/limiter"
	"convochat/internal/pkg/logx"
	"convochat/internal/pkg/resp"
)

// HandleWebSocket upgrades the request and runs the connection until it closes.
// Authentication happens on the socket through the join event, so the upgrade itself is open
// to any caller within the IP rate limit.
func HandleWebSocket(manager *chat.Manager, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(limiter.ClientIP(r)))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client, err := manager.Connect(conn)
		if err != nil {
			logx.Error(err, "Failed to register WebSocket connection")
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server unavailable"),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
			return
		}

		go client.WritePump()

		logx.Debug("WebSocket connection established", "conn_id", client.ID)

		client.ReadPump()
	}
}
