package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nicoplay/nicoplay/internal/danmaku"
	"github.com/nicoplay/nicoplay/internal/realtime"
)

const DefaultSampleInterval = 100 * time.Millisecond

// CommentAPI is the comment store as seen from a player.
type CommentAPI interface {
	FetchComments(ctx context.Context, videoID string) ([]danmaku.Comment, error)
	PostComment(ctx context.Context, videoID string, d danmaku.Draft) (danmaku.Comment, error)
}

// LiveFeed delivers comments submitted by other viewers while a video is open.
type LiveFeed interface {
	Subscribe(ctx context.Context, videoID string) (realtime.Subscription, error)
}

type Config struct {
	VideoID  string
	API      CommentAPI
	Live     LiveFeed
	Surface  danmaku.Surface
	Playback Playback
	Clock    clockwork.Clock

	SampleInterval time.Duration
	// SeekThreshold is the largest forward jump still treated as progress.
	SeekThreshold float64
	Presenter     danmaku.PresenterOptions
}

// Notice is a non-fatal condition worth showing to the viewer.
type Notice struct {
	Message string
	Err     error
}

// Session is everything belonging to one opened video: its timeline, the
// watcher, the presenter and the live subscription. A single loop goroutine
// owns the timeline and watcher; other goroutines hand it work over channels.
type Session struct {
	videoID   string
	api       CommentAPI
	playback  Playback
	index     *danmaku.Index
	watcher   *danmaku.Watcher
	presenter *danmaku.Presenter
	sub       realtime.Subscription
	ticker    clockwork.Ticker

	echoes  chan danmaku.Comment
	notices chan Notice

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open loads the comment history of cfg.VideoID, subscribes to its live
// comments and starts sampling playback. A failed history fetch or
// subscription is reported as a notice; the session still opens.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	switch {
	case cfg.VideoID == "":
		return nil, fmt.Errorf("open session: %w", &danmaku.InputError{Reason: "video id is required"})
	case cfg.API == nil:
		return nil, fmt.Errorf("open session: %w", &danmaku.InputError{Reason: "comment api is required"})
	case cfg.Surface == nil:
		return nil, fmt.Errorf("open session: %w", &danmaku.InputError{Reason: "surface is required"})
	case cfg.Playback == nil:
		return nil, fmt.Errorf("open session: %w", &danmaku.InputError{Reason: "playback is required"})
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}

	index := danmaku.NewIndex(cfg.SeekThreshold)
	s := &Session{
		videoID:   cfg.VideoID,
		api:       cfg.API,
		playback:  cfg.Playback,
		index:     index,
		watcher:   danmaku.NewWatcher(index, cfg.SeekThreshold),
		presenter: danmaku.NewPresenter(cfg.Surface, cfg.Clock, cfg.Presenter),
		echoes:    make(chan danmaku.Comment, 16),
		notices:   make(chan Notice, 16),
		done:      make(chan struct{}),
	}

	history, err := cfg.API.FetchComments(ctx, cfg.VideoID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("player: failed to fetch comments", "video_id", cfg.VideoID, "error", err)
		s.notify("Comments could not be loaded.", fmt.Errorf("%w: %w", danmaku.ErrTransientIO, err))
		history = nil
	}
	if err := s.watcher.Open(s.usable(history)); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if cfg.Live != nil {
		sub, err := cfg.Live.Subscribe(loopCtx, cfg.VideoID)
		if err != nil {
			slog.Warn("player: live subscription failed", "video_id", cfg.VideoID, "error", err)
			s.notify("Live comments are unavailable.", fmt.Errorf("%w: %w", danmaku.ErrTransientIO, err))
		} else {
			s.sub = sub
		}
	}

	s.ticker = cfg.Clock.NewTicker(cfg.SampleInterval)
	go s.run(loopCtx)
	return s, nil
}

// usable drops stored comments that would make the whole snapshot invalid.
func (s *Session) usable(history []danmaku.Comment) []danmaku.Comment {
	out := make([]danmaku.Comment, 0, len(history))
	skipped := 0
	for _, c := range history {
		if err := c.Validate(); err != nil {
			slog.Warn("player: skipping invalid stored comment", "video_id", s.videoID, "comment_id", c.ID, "error", err)
			skipped++
			continue
		}
		out = append(out, c)
	}
	if skipped > 0 {
		s.notify(fmt.Sprintf("%d comments could not be shown.", skipped), danmaku.ErrInvalidInput)
	}
	return out
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.ticker.Stop()

	var events <-chan realtime.Event
	if s.sub != nil {
		events = s.sub.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ticker.Chan():
			s.sample()
		case c := <-s.echoes:
			s.insert(c)
		case ev, ok := <-events:
			if !ok {
				events = nil
				if ctx.Err() == nil {
					slog.Warn("player: live subscription ended", "video_id", s.videoID)
					s.notify("Live comments disconnected.", danmaku.ErrTransientIO)
				}
				continue
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Session) sample() {
	if !s.playback.Playing() {
		s.watcher.Pause()
		return
	}
	s.watcher.Play()

	pos := s.playback.Position()
	transition, due := s.watcher.Observe(pos)
	switch transition {
	case danmaku.TransitionSeekBackward, danmaku.TransitionSeekForward:
		slog.Debug("player: seek detected", "video_id", s.videoID, "transition", transition.String(), "position", pos)
	}
	for _, c := range due {
		s.presenter.Present(c)
	}
}

func (s *Session) handleEvent(ev realtime.Event) {
	if ev.VideoID != s.videoID {
		return
	}
	switch ev.Type {
	case realtime.EventNewComment:
		if ev.Comment == nil || ev.Comment.VideoID != s.videoID {
			return
		}
		s.insert(*ev.Comment)
	case realtime.EventVideoDeleted:
		s.notify("This video was deleted.", danmaku.ErrStateViolation)
	}
}

func (s *Session) insert(c danmaku.Comment) {
	due, err := s.index.InsertLive(c, s.watcher.Cursor())
	if err != nil {
		slog.Warn("player: dropping invalid live comment", "video_id", s.videoID, "comment_id", c.ID, "error", err)
		return
	}
	if due {
		s.presenter.Present(c)
	}
}

// Submit validates d, stores it and echoes the stored comment into the local
// timeline. A draft without vpos is stamped with the current playback
// position. On failure nothing local changes, so the caller can keep the text.
func (s *Session) Submit(ctx context.Context, d danmaku.Draft) (danmaku.Comment, error) {
	select {
	case <-s.done:
		return danmaku.Comment{}, fmt.Errorf("submit comment: %w", danmaku.ErrStateViolation)
	default:
	}

	if d.Vpos == nil {
		pos := s.playback.Position()
		d.Vpos = &pos
	}
	if _, err := d.Normalize(); err != nil {
		return danmaku.Comment{}, err
	}

	c, err := s.api.PostComment(ctx, s.videoID, d)
	if err != nil {
		if errors.Is(err, danmaku.ErrInvalidInput) || errors.Is(err, danmaku.ErrTransientIO) {
			return danmaku.Comment{}, err
		}
		return danmaku.Comment{}, fmt.Errorf("%w: %w", danmaku.ErrTransientIO, err)
	}

	select {
	case s.echoes <- c:
	case <-s.done:
	case <-ctx.Done():
	}
	return c, nil
}

// Notices reports conditions such as a failed history fetch. Notices are
// dropped when nobody reads them. The channel is closed by Close.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

func (s *Session) VideoID() string {
	return s.videoID
}

// Close stops the loop, ends the live subscription and removes every comment
// from the surface. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		// notify only runs in Open and the loop, both finished by now.
		close(s.notices)
		if s.sub != nil {
			s.closeErr = s.sub.Close()
		}
		s.presenter.ClearAll()
		s.watcher.Close()
	})
	return s.closeErr
}

func (s *Session) notify(msg string, err error) {
	select {
	case s.notices <- Notice{Message: msg, Err: err}:
	default:
		slog.Warn("player: notice dropped", "video_id", s.videoID, "notice", msg)
	}
}
