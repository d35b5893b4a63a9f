package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/discovery"
	"github.com/muurk/castscan/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Events buffered per stream before the manager starts dropping them
	subscriptionBuffer = 64
)

// EventMessage is one JSON message on the /events stream. A new stream
// starts with a device_added message per compatible device.
type EventMessage struct {
	Type   string       `json:"type"`
	Time   time.Time    `json:"time"`
	Device *device.View `json:"device,omitempty"`
	Error  string       `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func newEventMessage(ev discovery.Event) EventMessage {
	msg := EventMessage{Type: ev.Kind.String(), Time: time.Now().UTC()}
	if ev.Device != nil {
		v := ev.Device.View()
		msg.Device = &v
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		logging.Debug("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	remoteAddr := r.RemoteAddr
	if !s.trackConn(remoteAddr, conn) {
		_ = conn.Close()
		return
	}
	defer s.releaseConn(remoteAddr)

	s.streamEvents(conn, remoteAddr)
}

// streamEvents writes manager events until the peer goes away, the manager
// closes or the server shuts down.
func (s *Server) streamEvents(conn *websocket.Conn, remoteAddr string) {
	logging.Info("Event stream opened", zap.String("remote_addr", remoteAddr))

	sub := s.manager.Subscribe(subscriptionBuffer)
	defer func() {
		sub.Close()
		_ = conn.Close()
		logging.Info("Event stream closed", zap.String("remote_addr", remoteAddr))
	}()

	gone := make(chan struct{})
	go readPump(conn, gone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				closeStream(conn, websocket.CloseGoingAway, "discovery stopped")
				return
			}
			if err := writeMessage(conn, newEventMessage(ev)); err != nil {
				logging.Debug("Failed to write event", zap.String("remote_addr", remoteAddr), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.done:
			closeStream(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

// readPump discards client messages and closes gone when the peer
// disconnects or stops answering pings.
func readPump(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, msg EventMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
}
