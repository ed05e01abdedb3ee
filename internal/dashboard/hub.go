package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kvedit/internal/logging"
)

// Event types pushed to browsers.
const (
	EventRefresh = "refresh"
	EventBanner  = "banner"
)

// Event is the JSON frame written to subscribers.
type Event struct {
	Type   string  `json:"type"`
	ID     string  `json:"id,omitempty"`
	Banner *Banner `json:"banner,omitempty"`
}

const (
	hubBufferSize = 16
	writeTimeout  = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Hub fans events out to websocket subscribers. It implements API so the
// bridge can refresh browsers directly.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub. Websocket upgrades are accepted from the
// server's own origin and from allowedOrigins.
func NewHub(logger *slog.Logger, allowedOrigins ...string) *Hub {
	origins := Origins(allowedOrigins)
	return &Hub{
		subs:   make(map[uint64]chan Event),
		logger: logging.NewComponentLogger(logger, "dashboard"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || SameOrigin(r) || origins.Allows(origin)
			},
		},
	}
}

// Subscribe registers a subscriber and returns its id and event channel.
func (h *Hub) Subscribe() (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan Event, hubBufferSize)
	h.subs[h.nextID] = ch
	return h.nextID, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	ch, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Publish delivers evt to every subscriber with buffer room and returns how
// many received it.
func (h *Hub) Publish(evt Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for id, ch := range h.subs {
		select {
		case ch <- evt:
			delivered++
		default:
			h.logger.Debug("subscriber buffer full, dropping event", logging.Int64("subscriber", int64(id)), logging.String("type", evt.Type))
		}
	}
	return delivered
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// RefreshVisualization tells every browser to re-fetch visualization id.
func (h *Hub) RefreshVisualization(_ context.Context, id string) error {
	n := h.Publish(Event{Type: EventRefresh, ID: id})
	h.logger.Debug("refresh published", logging.String("visualization", id), logging.Int("subscribers", n))
	return nil
}

// Notify pushes a banner to every browser.
func (h *Hub) Notify(b Banner) {
	h.Publish(Event{Type: EventBanner, Banner: &b})
}

// Handler upgrades the request to a websocket and streams events until the
// client disconnects.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", logging.Error(err), logging.String(logging.FieldEventType, "websocket_upgrade_failed"))
			return
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		id, events := h.Subscribe()
		defer h.Unsubscribe(id)

		// Reads only detect the close frame; clients send nothing else.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case evt, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(evt)
				if err != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	}
}
