package realtime

import "github.com/nicoplay/nicoplay/internal/danmaku"

const (
	EventNewComment   = "new-comment"
	EventVideoDeleted = "video-deleted"
)

// Event is the message pushed to every viewer of a video.
type Event struct {
	Type    string           `json:"type"`
	VideoID string           `json:"videoId"`
	Comment *danmaku.Comment `json:"comment,omitempty"`
}

func NewCommentEvent(c danmaku.Comment) Event {
	return Event{Type: EventNewComment, VideoID: c.VideoID, Comment: &c}
}

// Subscription is one viewer's feed of events for a single video.
type Subscription interface {
	Events() <-chan Event
	Close() error
}
