package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tesseralabs/tessera/backend/internal/auth"
)

const (
	sessionSendBuffer = 64
	sessionWriteWait  = 5 * time.Second

	// sessionPingInterval sits under the read deadline so an idle viewer's
	// pong refreshes the deadline before it expires.
	sessionPingInterval = 54 * time.Second
)

var (
	// ErrSessionClosed indicates a send was attempted after the connection ended.
	ErrSessionClosed = errors.New("server: session closed")
	// ErrSendBufferFull indicates the session's outbound buffer overflowed.
	// Broadcasts are fire-and-forget: a slow consumer drops frames rather
	// than stalling the room.
	ErrSendBufferFull = errors.New("server: session send buffer full")
)

// Envelope is the wire frame exchanged in both directions: an event name and
// an event-specific payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Session wraps one authenticated websocket connection. All writes funnel
// through a single writer goroutine so concurrent broadcasts never interleave
// frames on the underlying connection.
type Session struct {
	id           string
	identity     auth.Identity
	conn         *websocket.Conn
	pingInterval time.Duration

	sendCh    chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, identity auth.Identity, conn *websocket.Conn) *Session {
	return newSessionWithPing(id, identity, conn, sessionPingInterval)
}

func newSessionWithPing(id string, identity auth.Identity, conn *websocket.Conn, pingInterval time.Duration) *Session {
	session := &Session{
		id:           id,
		identity:     identity,
		conn:         conn,
		pingInterval: pingInterval,
		sendCh:       make(chan outbound, sessionSendBuffer),
		done:         make(chan struct{}),
	}
	go session.writeLoop()
	return session
}

// installKeepalive arms the read deadline and refreshes it whenever the peer
// answers one of the write loop's pings, so a session that only watches
// broadcasts is never torn down as idle.
func (s *Session) installKeepalive(wait time.Duration) {
	_ = s.conn.SetReadDeadline(time.Now().Add(wait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wait))
	})
}

// SessionID returns the stable identifier used by the room registry.
func (s *Session) SessionID() string {
	return s.id
}

// Identity returns the principal authenticated at handshake.
func (s *Session) Identity() auth.Identity {
	return s.identity
}

// Send queues an event for delivery. Never blocks the caller.
func (s *Session) Send(event string, payload any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.sendCh <- outbound{Event: event, Payload: payload}:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close tears down the connection. Safe to call from any goroutine, any
// number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-s.sendCh:
			if err := s.conn.SetWriteDeadline(time.Now().Add(sessionWriteWait)); err != nil {
				s.Close()
				return
			}
			if err := s.conn.WriteJSON(message); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(sessionWriteWait)); err != nil {
				s.Close()
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
