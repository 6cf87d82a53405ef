package websocket

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"Seshat/internal/models"
)

// writePump owns ordinary writes to the socket: queued events and pings.
// Close frames go through WriteControl from the session goroutine.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.send:
			if err := s.writeEvent(ev); err != nil {
				s.writeFailed(err)
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
				s.writeFailed(err)
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.writeFailed(err)
				return
			}
		}
	}
}

func (s *Session) writeEvent(ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("Encoding event failed", "type", ev.Type, "error", err)
		return nil
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// writeFailed closes the socket so the read loop ends and tears the session down.
func (s *Session) writeFailed(err error) {
	if !errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
		s.log.Warn("Write failed", "error", err)
	}
	s.conn.Close()
}
