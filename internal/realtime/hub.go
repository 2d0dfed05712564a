package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var ErrHubStopped = errors.New("realtime hub stopped")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// member is anything the hub can fan an event out to.
type member interface {
	deliver(msg []byte, ev Event) bool
	close()
}

type membership struct {
	videoID string
	m       member
	done    chan struct{}
}

type countRequest struct {
	videoID string
	reply   chan int
}

// Hub keeps one room per video and fans events out to its members. Room state
// is only touched by the Run goroutine.
type Hub struct {
	rooms      map[string]map[member]struct{}
	register   chan membership
	unregister chan membership
	broadcast  chan Event
	countReq   chan countRequest
	stopped    chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[member]struct{}),
		register:   make(chan membership, 32),
		unregister: make(chan membership, 32),
		broadcast:  make(chan Event, 128),
		countReq:   make(chan countRequest, 8),
		stopped:    make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every member.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for m := range room {
					m.close()
				}
			}
			h.rooms = make(map[string]map[member]struct{})
			slog.Info("realtime: hub shutting down")
			return
		case req := <-h.register:
			room, ok := h.rooms[req.videoID]
			if !ok {
				room = make(map[member]struct{})
				h.rooms[req.videoID] = room
			}
			room[req.m] = struct{}{}
			close(req.done)
		case req := <-h.unregister:
			h.drop(req.videoID, req.m)
			close(req.done)
		case req := <-h.countReq:
			req.reply <- len(h.rooms[req.videoID])
		case ev := <-h.broadcast:
			room := h.rooms[ev.VideoID]
			if len(room) == 0 {
				continue
			}
			msg, err := json.Marshal(ev)
			if err != nil {
				slog.Error("realtime: failed to encode event", "video_id", ev.VideoID, "error", err)
				continue
			}
			for m := range room {
				if !m.deliver(msg, ev) {
					slog.Warn("realtime: dropping slow viewer", "video_id", ev.VideoID)
					h.drop(ev.VideoID, m)
				}
			}
		}
	}
}

func (h *Hub) drop(videoID string, m member) {
	room, ok := h.rooms[videoID]
	if !ok {
		return
	}
	if _, ok := room[m]; !ok {
		return
	}
	delete(room, m)
	m.close()
	if len(room) == 0 {
		delete(h.rooms, videoID)
	}
}

func (h *Hub) join(videoID string, m member) error {
	req := membership{videoID: videoID, m: m, done: make(chan struct{})}
	select {
	case h.register <- req:
	case <-h.stopped:
		return ErrHubStopped
	}
	select {
	case <-req.done:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

func (h *Hub) leave(videoID string, m member) {
	req := membership{videoID: videoID, m: m, done: make(chan struct{})}
	select {
	case h.unregister <- req:
	case <-h.stopped:
		return
	}
	select {
	case <-req.done:
	case <-h.stopped:
	}
}

// Broadcast queues ev for every member of its video's room.
func (h *Hub) Broadcast(ctx context.Context, ev Event) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Viewers returns the number of members currently watching videoID.
func (h *Hub) Viewers(videoID string) int {
	req := countRequest{videoID: videoID, reply: make(chan int, 1)}
	select {
	case h.countReq <- req:
	case <-h.stopped:
		return 0
	}
	select {
	case n := <-req.reply:
		return n
	case <-h.stopped:
		return 0
	}
}

// Subscribe joins videoID in-process. The subscription ends on Close or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, videoID string) (Subscription, error) {
	sub := &localSubscription{hub: h, videoID: videoID, events: make(chan Event, sendBuffer)}
	if err := h.join(videoID, sub); err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-h.stopped:
		}
	}()
	return sub, nil
}

type localSubscription struct {
	hub     *Hub
	videoID string
	events  chan Event
	once    sync.Once
}

func (s *localSubscription) deliver(_ []byte, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *localSubscription) close() { close(s.events) }

func (s *localSubscription) Events() <-chan Event { return s.events }

func (s *localSubscription) Close() error {
	s.once.Do(func() { s.hub.leave(s.videoID, s) })
	return nil
}

// ServeWS upgrades the request and keeps the viewer in videoID's room until
// the connection drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, videoID string, viewer Viewer) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("realtime: websocket upgrade failed", "video_id", videoID, "error", err)
		return
	}

	c := &wsClient{hub: h, videoID: videoID, conn: conn, send: make(chan []byte, sendBuffer)}
	if err := h.join(videoID, c); err != nil {
		_ = conn.Close()
		return
	}
	connID := uuid.NewString()
	slog.Info("realtime: viewer joined", append([]any{"video_id", videoID, "conn_id", connID}, viewer.LogAttrs()...)...)

	go c.writePump()
	c.readPump()

	slog.Info("realtime: viewer left", "video_id", videoID, "conn_id", connID)
}

type wsClient struct {
	hub     *Hub
	videoID string
	conn    *websocket.Conn
	send    chan []byte
}

func (c *wsClient) deliver(msg []byte, _ Event) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() { close(c.send) }

// readPump only services control frames; viewers submit comments over HTTP.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.leave(c.videoID, c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
