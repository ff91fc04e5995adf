package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"axectl/internal/fleet"
	"axectl/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// upgrader only accepts local clients; the server binds loopback and the
// stream carries no credentials worth cross-origin protection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// streamFrame is one websocket message: a full poll of the selected
// devices plus the swarm summary.
type streamFrame struct {
	At      time.Time       `json:"at"`
	Devices []statsResponse `json:"devices"`
	Summary any             `json:"summary"`
}

// handleStream upgrades to a websocket and pushes a stats frame on every
// interval until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	logging.Info("stats stream opened", zap.String("remote_addr", remoteAddr))
	defer logging.Info("stats stream closed", zap.String("remote_addr", remoteAddr))

	// Reader goroutine: we never expect client messages, but reads must be
	// drained for pong handling and to notice disconnects.
	done := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.StreamInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	if err := s.writeFrame(r.Context(), conn, f); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.writeFrame(r.Context(), conn, f); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, f fleet.Filter) error {
	samples, summary, err := s.svc.Poll(ctx, f, s.config.PollParallel, 0)
	if err != nil {
		logging.Warn("failed to persist cache after poll: " + err.Error())
	}
	s.metrics.observePoll(summary)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(streamFrame{
		At:      time.Now(),
		Devices: statsRows(samples),
		Summary: summary,
	})
}
