package ws

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playhive/backend/internal/realtime"
)

// HandleLeaderboardWebSocket serves the leaderboard feed. Anonymous
// connections are welcome. The client is subscribed for the lifetime of
// the socket and receives the current snapshot immediately so it does not
// wait out the first publish period.
func HandleLeaderboardWebSocket(pub *realtime.Publisher) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WS] Upgrade error: %v", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan []byte, 64),
		}
		go client.writePump()

		pub.Subscribe(client)
		if err := pub.SendSnapshot(context.Background(), client); err != nil {
			log.Printf("[LEADERBOARD] initial snapshot failed: %v", err)
		}

		defer func() {
			pub.Unsubscribe(client)
			client.close()
			conn.Close()
		}()

		conn.SetReadLimit(1024)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		// Inbound traffic is ignored; the read loop only detects the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
