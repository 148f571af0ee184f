package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playhive/backend/internal/auth"
	"github.com/playhive/backend/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// WSMessage is the wire envelope for both directions.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Gateway dispatches inbound websocket events to the realtime components.
type Gateway struct {
	Registry   *realtime.Registry
	Rooms      *realtime.Rooms
	Matchmaker *realtime.Matchmaker
	JWTSecret  string
}

// Client represents a connected WebSocket client
type Client struct {
	conn     *websocket.Conn
	identity realtime.Identity
	send     chan []byte

	mu     sync.Mutex
	closed bool
}

// Send marshals a message onto the client's outbound buffer. A full buffer
// drops the message; a closed client reports the push as failed so callers
// can treat it as an implicit disconnect.
func (c *Client) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[WS] send buffer full for user %q, dropping message", c.identity.UserID)
	}
	return nil
}

func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// sendError sends an error message to the client
func (c *Client) sendError(message string) {
	c.Send(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

// HandleWebSocket upgrades the connection and registers it. A missing or
// invalid token is not fatal: the connection proceeds anonymously and
// identity-required operations are rejected per message.
func (g *Gateway) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	identity := auth.Resolve(g.JWTSecret, token)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, 256),
	}
	reg := g.Registry.Register(identity, client)

	log.Printf("[WS] Connection %s established (user=%q)", reg.ID, identity.UserID)

	go client.writePump()
	g.readPump(client, reg)
}

// readPump reads inbound events until the connection drops, then triggers
// the registry's disconnect cascade.
func (g *Gateway) readPump(c *Client, reg *realtime.Conn) {
	defer func() {
		g.Registry.Unregister(reg.ID)
		c.close()
		c.conn.Close()
		log.Printf("[WS] Connection %s closed (user=%q)", reg.ID, c.identity.UserID)
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] read error for user %q: %v", c.identity.UserID, err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		g.handleMessage(c, msg)
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for user %q: %v", c.identity.UserID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type roomData struct {
	RoomID string `json:"room_id"`
}

type messageData struct {
	RoomID string `json:"room_id"`
	ID     string `json:"id"`
	Text   string `json:"text"`
	Kind   string `json:"kind"`
}

type queueData struct {
	GameID string `json:"game_id"`
}

// handleMessage processes one inbound event.
func (g *Gateway) handleMessage(c *Client, msg WSMessage) {
	switch msg.Type {
	case "join_room":
		var data roomData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.RoomID == "" {
			c.sendError("room_id required")
			return
		}
		if err := g.Rooms.Join(data.RoomID, c.identity.UserID); err != nil {
			c.sendError(err.Error())
			return
		}
		c.Send(map[string]interface{}{"type": "room_joined", "room_id": data.RoomID})

	case "leave_room":
		var data roomData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.RoomID == "" {
			c.sendError("room_id required")
			return
		}
		g.Rooms.Leave(data.RoomID, c.identity.UserID)
		c.Send(map[string]interface{}{"type": "room_left", "room_id": data.RoomID})

	case "send_message":
		var data messageData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.RoomID == "" {
			c.sendError("room_id required")
			return
		}
		err := g.Rooms.Broadcast(data.RoomID, c.identity, realtime.Message{
			ID:   data.ID,
			Text: data.Text,
			Kind: data.Kind,
		})
		if err != nil {
			c.sendError(err.Error())
		}

	case "typing_start", "typing_stop":
		var data roomData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.RoomID == "" {
			return
		}
		g.Rooms.SetTyping(data.RoomID, c.identity, msg.Type == "typing_start")

	case "queue":
		var data queueData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.GameID == "" {
			c.sendError("game_id required")
			return
		}
		g.handleQueue(c, data.GameID)

	case "cancel_queue":
		if c.identity.Anonymous() {
			c.sendError(realtime.ErrIdentityRequired.Error())
			return
		}
		g.Matchmaker.Cancel(c.identity.UserID)
		c.Send(map[string]interface{}{"type": "search_cancelled"})

	case "status":
		if c.identity.Anonymous() {
			c.sendError(realtime.ErrIdentityRequired.Error())
			return
		}
		res, err := g.Matchmaker.Status(context.Background(), c.identity.UserID)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.Send(map[string]interface{}{
			"type":   "queue_status",
			"result": res,
		})

	default:
		c.sendError("Unknown message type")
	}
}

// handleQueue runs the enqueue and notifies both sides of a pairing.
func (g *Gateway) handleQueue(c *Client, gameID string) {
	res, err := g.Matchmaker.Enqueue(context.Background(), c.identity, gameID)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	if res.Searching {
		c.Send(map[string]interface{}{"type": "searching", "game_id": gameID})
		return
	}

	c.Send(map[string]interface{}{
		"type":        "match_found",
		"match_id":    res.MatchID,
		"game_id":     res.GameID,
		"opponent_id": res.OpponentID,
	})

	// Tell the opponent on every device they have live.
	for _, handle := range g.Registry.Handles(res.OpponentID) {
		handle.Send(map[string]interface{}{
			"type":        "match_found",
			"match_id":    res.MatchID,
			"game_id":     res.GameID,
			"opponent_id": c.identity.UserID,
		})
	}
}
