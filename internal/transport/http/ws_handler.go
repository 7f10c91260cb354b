package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"interquest/internal/app"
)

// WSHandler upgrades connections and pumps rapid-fire messages between
// clients and the round coordinator.
type WSHandler struct {
	game     *app.Game
	upgrader websocket.Upgrader
}

func NewWSHandler(game *app.Game) *WSHandler {
	return &WSHandler{
		game: game,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type submitPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	Timestamp  int64  `json:"timestamp"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client adapts one websocket connection to app.Sender. Sends are buffered
// and never block the coordinator; when the buffer is full the oldest queued
// message is dropped in favor of the new one.
type client struct {
	conn *websocket.Conn
	send chan outboundMessage
	done chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan outboundMessage, 32),
		done: make(chan struct{}),
	}
}

func (c *client) Send(event string, payload any) error {
	msg := outboundMessage{Type: event, Payload: payload}
	select {
	case <-c.done:
		return nil
	case c.send <- msg:
		return nil
	default:
	}
	// drop the oldest queued message so a slow reader cannot stall the round
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- msg:
	default:
	}
	return nil
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}

// ServeWS runs one connection: a joinRapidFire message attaches the client to
// the round, submitAnswer messages race for the current question, and the
// transport-level close detaches it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := newClient(conn)
	go c.writeLoop()
	defer close(c.done)
	defer h.game.Disconnect(c)

	joinedUser := ""
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "joinRapidFire":
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.UserID == "" {
				_ = c.Send(app.EventError, app.ErrorNotice{Message: "invalid join payload"})
				continue
			}
			if err := h.game.Join(r.Context(), c, payload.UserID, payload.FirstName, payload.LastName); err != nil {
				// Join already sent the error event to this client.
				continue
			}
			joinedUser = payload.UserID
		case "submitAnswer":
			if joinedUser == "" {
				_ = c.Send(app.EventError, app.ErrorNotice{Message: "join before submitting answers"})
				continue
			}
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				_ = c.Send(app.EventError, app.ErrorNotice{Message: "invalid answer payload"})
				continue
			}
			h.game.Submit(joinedUser, payload.QuestionID, payload.Answer, payload.Timestamp)
		default:
			_ = c.Send(app.EventError, app.ErrorNotice{Message: "unsupported message type"})
		}
	}
}
