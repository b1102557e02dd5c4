package observer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Bootstrap describes the grid to a viewer before the frame stream starts.
type Bootstrap struct {
	Name       string  `json:"name"`
	Mode       string  `json:"mode"`
	Extent     float64 `json:"extent"`
	CellSize   float64 `json:"cell_size"`
	Columns    int     `json:"columns"`
	Rows       int     `json:"rows"`
	TickRateMS int64   `json:"tick_rate_ms"`
}

// Server serves GET /bootstrap (grid parameters) and GET /ws (frame stream).
// Loopback clients only.
type Server struct {
	hub       *Hub
	bootstrap Bootstrap
	log       *zap.Logger

	upgrader websocket.Upgrader
	http     *http.Server
	ln       net.Listener
}

func NewServer(hub *Hub, bootstrap Bootstrap, log *zap.Logger) *Server {
	s := &Server{
		hub:       hub,
		bootstrap: bootstrap,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
	return s
}

// Handler returns the routes without listening, for embedding and tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap", s.handleBootstrap)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("observer server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound listen address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops the listener and ends the websocket sessions, which the http
// server does not track once they are hijacked.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleBootstrap(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(s.bootstrap)
}

func (s *Server) handleWS(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, frames := s.hub.join()
	defer s.hub.leave(id)
	s.log.Info("observer joined", zap.Uint64("session", id), zap.String("remote", r.RemoteAddr))

	// Reader: viewers send nothing we act on, this only notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			s.log.Info("observer left", zap.Uint64("session", id))
			return
		case b, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				s.log.Info("observer closed", zap.Uint64("session", id))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.log.Debug("observer write failed", zap.Uint64("session", id), zap.Error(err))
				return
			}
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
