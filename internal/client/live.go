package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nicoplay/nicoplay/internal/danmaku"
	"github.com/nicoplay/nicoplay/internal/realtime"
)

// Subscribe opens the live WebSocket of videoID. The subscription ends on
// Close, when ctx is done, or when the server goes away.
func (c *Client) Subscribe(ctx context.Context, videoID string) (realtime.Subscription, error) {
	u, err := c.liveURL(videoID)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial live feed: %w", danmaku.ErrTransientIO, err)
	}

	sub := &liveSubscription{
		conn:    conn,
		events:  make(chan realtime.Event, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go sub.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (c *Client) liveURL(videoID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/videos/" + videoID + "/live"
	return u.String(), nil
}

type liveSubscription struct {
	conn    *websocket.Conn
	events  chan realtime.Event
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *liveSubscription) readLoop() {
	defer close(s.done)
	defer close(s.events)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var ev realtime.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			slog.Warn("client: discarding malformed live event", "error", err)
			continue
		}
		select {
		case s.events <- ev:
		case <-s.closing:
			return
		}
	}
}

func (s *liveSubscription) Events() <-chan realtime.Event {
	return s.events
}

func (s *liveSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closing)
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}
