package staffhandler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"staffdesk/internal/domain/staff"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// changeQueue keeps store events in order without blocking the store's
// delivery goroutine on a slow client.
type changeQueue struct {
	mu      sync.Mutex
	pending []staff.Change
	ready   chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{ready: make(chan struct{}, 1)}
}

func (q *changeQueue) push(c staff.Change) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *changeQueue) drain() []staff.Change {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func (h *Handler) upgrader() websocket.Upgrader {
	up := websocket.Upgrader{}
	if len(h.AllowedOrigins) > 0 {
		up.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(h.AllowedOrigins, origin)
		}
	}
	return up
}

// handleWatch streams list changes for one location. The first messages are
// the existing records, then one message per change.
func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	loc, ok := parseLocation(w, r, "location", staff.LocationActive)
	if !ok {
		return
	}

	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	queue := newChangeQueue()
	unsubscribe, err := h.Service.Watch(ctx, actor, loc, queue.push)
	if err != nil {
		slog.Warn("staff watch failed", "err", err)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"), time.Now().Add(writeWait))
		return
	}
	defer unsubscribe()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-queue.ready:
			for _, change := range queue.drain() {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(change); err != nil {
					return
				}
			}
		}
	}
}
