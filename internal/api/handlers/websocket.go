package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pconnect/portal/internal/session"
	ws "github.com/pconnect/portal/internal/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
)

// NewUpgrader accepts same-origin requests and the given extra origins. An
// empty list accepts any origin.
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				return true
			}
			return allowed[origin] || origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
}

// Stream upgrades to a websocket that receives this session's availability
// snapshots and every booking change.
func (f *BookingFlow) Stream(hub *ws.Hub, upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionOf(r)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			f.Logger.Warn("WebSocket upgrade failed", zap.Error(err))
			return
		}

		client := ws.NewClient(s.ID())
		hub.Register(client)

		if wt, ok := f.Watchers.Get(s.ID()); ok && f.Events != nil {
			f.Events.AvailabilityChanged(s.ID(), wt.State())
		}

		go writePump(conn, client)
		go f.readPump(conn, client, hub, s)
	}
}

// writePump pumps messages from the hub to the connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client commands until the connection closes.
func (f *BookingFlow) readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub, s *session.Session) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if reply := f.handleClientMessage(message, s); reply != nil {
			if data, err := reply.JSON(); err == nil {
				hub.SendTo(s.ID(), data)
			}
		}
	}
}

// handleClientMessage runs one client command and returns the direct reply,
// if any. Snapshot updates arrive through the watcher's change hook.
func (f *BookingFlow) handleClientMessage(message []byte, s *session.Session) *ws.Message {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		return errorReply("invalid_message", "Message is not valid JSON", "")
	}

	switch msg.Type {
	case ws.TypePing:
		reply, _ := ws.NewMessage(ws.TypePong, nil)
		return &reply

	case ws.TypeAvailabilityRefresh:
		wt, ok := f.Watchers.Get(s.ID())
		if !ok {
			return errorReply("not_watching", "Availability is not open", string(msg.Type))
		}
		ctx, cancel := context.WithTimeout(s.Context(context.Background()), time.Minute)
		defer cancel()
		wt.Refresh(ctx)
		return nil

	case ws.TypeBannerDismiss:
		if wt, ok := f.Watchers.Get(s.ID()); ok {
			wt.DismissBanner()
		}
		return nil

	default:
		return errorReply("unknown_type", "Unknown message type", string(msg.Type))
	}
}

func errorReply(code, message, original string) *ws.Message {
	reply, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{
		Code:         code,
		Message:      message,
		OriginalType: original,
	})
	if err != nil {
		return nil
	}
	return &reply
}
