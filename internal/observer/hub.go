package observer

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/l1jgo/gridsim/internal/grid"
	"go.uber.org/zap"
)

// Hub fans occupancy frames out to websocket sessions. Publish is called from the
// game loop after the tick's grid update, so sessions only ever see finished frames.
// A session whose buffer is full misses frames; the loop never blocks on a client.
type Hub struct {
	log *zap.Logger

	mu       sync.Mutex
	sessions map[uint64]chan []byte
	latest   *grid.Frame
	nextID   uint64
	closed   bool

	dropped atomic.Uint64
}

const sessionBuffer = 8

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:      log,
		sessions: make(map[uint64]chan []byte),
	}
}

// Publish hands f to every session. f must not be modified afterwards.
func (h *Hub) Publish(f grid.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &f
	if h.closed || len(h.sessions) == 0 {
		return
	}
	b, err := json.Marshal(f)
	if err != nil {
		h.log.Error("marshal frame", zap.Uint64("tick", f.Tick), zap.Error(err))
		return
	}
	for _, ch := range h.sessions {
		select {
		case ch <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// Sessions is the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Dropped counts frames skipped because a session was behind.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// join registers a session. The latest frame, if any, is queued first so a new
// viewer does not wait a full tick for its first picture.
func (h *Hub) join() (uint64, <-chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan []byte, sessionBuffer)
	if h.closed {
		close(ch)
		return id, ch
	}
	if h.latest != nil {
		if b, err := json.Marshal(h.latest); err == nil {
			ch <- b
		}
	}
	h.sessions[id] = ch
	return id, ch
}

func (h *Hub) leave(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// Close ends every session: each session channel is closed so its writer sends a
// close frame and returns. Sessions joining afterwards get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.sessions {
		close(ch)
		delete(h.sessions, id)
	}
}
