package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-hailing/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var errSessionClosed = errors.New("ws: session closed")

// session wraps one live connection. All writes go through the send channel
// so a single writer goroutine owns the conn; Send never blocks the caller.
type session struct {
	conn *websocket.Conn
	send chan models.Event
	done chan struct{}
	once sync.Once
}

func newSession(conn *websocket.Conn) *session {
	return &session{
		conn: conn,
		send: make(chan models.Event, sendBuffer),
		done: make(chan struct{}),
	}
}

func (s *session) Send(ev models.Event) error {
	select {
	case <-s.done:
		return errSessionClosed
	case s.send <- ev:
		return nil
	default:
		// a connection that cannot drain its buffer is as good as gone
		return errSessionClosed
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
