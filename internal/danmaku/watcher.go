package danmaku

import "fmt"

type PlaybackState int

const (
	StatePaused PlaybackState = iota
	StatePlaying
	StateClosed
)

func (s PlaybackState) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("PlaybackState(%d)", int(s))
}

// Transition classifies one playback sample against the previous cursor.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionProgress
	TransitionSeekBackward
	TransitionSeekForward
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionProgress:
		return "progress"
	case TransitionSeekBackward:
		return "seek-backward"
	case TransitionSeekForward:
		return "seek-forward"
	}
	return fmt.Sprintf("Transition(%d)", int(t))
}

// Watcher turns successive playback positions into Advance and Reset calls on
// an Index. Like the Index it belongs to a single goroutine.
type Watcher struct {
	index     *Index
	threshold float64
	cursor    float64
	state     PlaybackState
}

func NewWatcher(index *Index, threshold float64) *Watcher {
	if threshold <= 0 {
		threshold = DefaultSeekSlack
	}
	return &Watcher{index: index, threshold: threshold, state: StatePaused}
}

// Open loads the comment snapshot of a freshly opened video and rewinds the
// cursor to 0. Nothing is presented until the first progress sample, so
// comments at vpos 0 appear on that sample rather than at load.
func (w *Watcher) Open(comments []Comment) error {
	if w.state == StateClosed {
		return fmt.Errorf("open watcher: %w", ErrStateViolation)
	}
	if err := w.index.Load(comments); err != nil {
		return err
	}
	w.cursor = 0
	w.state = StatePlaying
	return nil
}

// Observe classifies the reading c against the cursor and returns the comments
// that became due. Samples taken while paused or closed are ignored.
func (w *Watcher) Observe(c float64) (Transition, []Comment) {
	if w.state != StatePlaying {
		return TransitionNone, nil
	}

	p := w.cursor
	switch {
	case c < p:
		w.index.Reset()
		w.cursor = c
		return TransitionSeekBackward, nil
	case c-p > w.threshold:
		// comments between p and c are skipped, not flooded
		w.index.Reset()
		w.cursor = c
		return TransitionSeekForward, nil
	default:
		due := w.index.Advance(p, c)
		w.cursor = c
		return TransitionProgress, due
	}
}

func (w *Watcher) Pause() {
	if w.state == StatePlaying {
		w.state = StatePaused
	}
}

func (w *Watcher) Play() {
	if w.state == StatePaused {
		w.state = StatePlaying
	}
}

// Close is terminal.
func (w *Watcher) Close() {
	w.state = StateClosed
}

func (w *Watcher) State() PlaybackState {
	return w.state
}

func (w *Watcher) Cursor() float64 {
	return w.cursor
}
