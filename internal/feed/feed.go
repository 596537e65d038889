// Package feed streams bus events to websocket clients as JSON frames.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"modbot/internal/bus"
)

const (
	clientBuffer = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Frame is one event as sent to clients.
type Frame struct {
	Platform string    `json:"platform"`
	Kind     bus.Kind  `json:"kind"`
	Time     time.Time `json:"time"`
	Event    bus.Event `json:"event"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the admin server binds to localhost by default
	CheckOrigin: func(r *http.Request) bool { return true },
}

type source struct {
	platform string
	bus      *bus.Bus
}

type client struct {
	send  chan Frame
	kinds map[bus.Kind]bool // empty = all kinds
}

func (c *client) wants(k bus.Kind) bool {
	return len(c.kinds) == 0 || c.kinds[k]
}

// Feed fans bus events out to connected websocket clients. Slow clients lose
// frames instead of blocking the bus.
type Feed struct {
	mu      sync.RWMutex
	sources []source
	clients map[*client]struct{}
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// Attach forwards every event of b, labelled with platform.
func (f *Feed) Attach(platform string, b *bus.Bus) {
	f.mu.Lock()
	f.sources = append(f.sources, source{platform: platform, bus: b})
	f.mu.Unlock()

	b.OnAny(func(_ context.Context, ev bus.Event) error {
		f.Broadcast(Frame{Platform: platform, Kind: ev.Kind(), Time: time.Now(), Event: ev})
		return nil
	})
}

// Broadcast queues fr for every client subscribed to its kind.
func (f *Feed) Broadcast(fr Frame) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for c := range f.clients {
		if !c.wants(fr.Kind) {
			continue
		}
		select {
		case c.send <- fr:
		default:
			f.logger.Debug("feed client too slow, frame dropped", "kind", fr.Kind)
		}
	}
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// ServeHTTP upgrades the request. Query parameters: kind (comma separated
// kinds to receive) and since (a duration such as 5m to replay recent
// history first).
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kinds, err := parseKinds(r.URL.Query().Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var since time.Duration
	if s := r.URL.Query().Get("since"); s != "" {
		if since, err = time.ParseDuration(s); err != nil || since < 0 {
			http.Error(w, fmt.Sprintf("invalid since %q", s), http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	c := &client{send: make(chan Frame, clientBuffer), kinds: kinds}
	backlog := f.replay(c, since)

	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	f.logger.Info("feed client connected", "remote", r.RemoteAddr, "replayed", len(backlog))

	done := make(chan struct{})
	go f.writeLoop(conn, c, backlog, done)

	// read until the client goes away; frames from clients are ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Debug("feed read error", "err", err)
			}
			break
		}
	}

	f.mu.Lock()
	delete(f.clients, c)
	f.mu.Unlock()
	close(done)
	conn.Close()
	f.logger.Info("feed client disconnected", "remote", r.RemoteAddr)
}

func (f *Feed) replay(c *client, since time.Duration) []Frame {
	if since == 0 {
		return nil
	}
	from := time.Now().Add(-since)

	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []Frame
	for _, s := range f.sources {
		for _, rec := range s.bus.Replay("", from) {
			if c.wants(rec.Kind) {
				out = append(out, Frame{Platform: s.platform, Kind: rec.Kind, Time: rec.Time, Event: rec.Event})
			}
		}
	}
	return out
}

func (f *Feed) writeLoop(conn *websocket.Conn, c *client, backlog []Frame, done <-chan struct{}) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	write := func(fr Frame) error {
		data, err := json.Marshal(fr)
		if err != nil {
			f.logger.Warn("feed frame not encodable", "kind", fr.Kind, "err", err)
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for _, fr := range backlog {
		if err := write(fr); err != nil {
			return
		}
	}
	for {
		select {
		case <-done:
			return
		case fr := <-c.send:
			if err := write(fr); err != nil {
				f.logger.Debug("feed write failed", "err", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseKinds(s string) (map[bus.Kind]bool, error) {
	kinds := map[bus.Kind]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k := bus.Kind(part)
		if !k.Valid() {
			return nil, fmt.Errorf("unknown event kind %q", part)
		}
		kinds[k] = true
	}
	return kinds, nil
}
