package danmaku

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// DefaultSeekSlack is the jump size, in seconds, treated as a seek rather than
// playback progress. It is also the window around the cursor inside which a
// live comment is shown immediately.
const DefaultSeekSlack = 2.0

type entry struct {
	comment   Comment
	presented bool
}

// Index holds the comments of the open video sorted by vpos, ties by store
// sequence, together with the per-session presented flags.
//
// Index is not safe for concurrent use; a player session owns it from a
// single goroutine.
type Index struct {
	entries []*entry
	byID    map[string]*entry
	slack   float64
}

func NewIndex(slack float64) *Index {
	if slack <= 0 || math.IsNaN(slack) {
		slack = DefaultSeekSlack
	}
	return &Index{
		byID:  make(map[string]*entry),
		slack: slack,
	}
}

// Load replaces the working set and clears every presented flag. The batch is
// rejected as a whole if any comment is invalid. Repeated ids keep the first copy.
func (ix *Index) Load(comments []Comment) error {
	entries := make([]*entry, 0, len(comments))
	byID := make(map[string]*entry, len(comments))
	for i, c := range comments {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("load comment %d: %w", i, err)
		}
		if _, dup := byID[c.ID]; dup {
			continue
		}
		e := &entry{comment: c}
		entries = append(entries, e)
		byID[c.ID] = e
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return sortsBefore(entries[i].comment, entries[j].comment)
	})

	ix.entries = entries
	ix.byID = byID
	return nil
}

// Advance returns the comments with prev <= vpos < cur that have not been
// presented yet, in ascending vpos order, and marks them presented.
// A backwards interval is a state violation: the index resets and nothing is due.
func (ix *Index) Advance(prev, cur float64) []Comment {
	if cur < prev {
		slog.Warn("timeline: advance moved backwards, resetting", "previous", prev, "current", cur)
		ix.Reset()
		return nil
	}

	start := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].comment.Vpos >= prev
	})

	var due []Comment
	for i := start; i < len(ix.entries); i++ {
		e := ix.entries[i]
		if e.comment.Vpos >= cur {
			break
		}
		if e.presented {
			continue
		}
		e.presented = true
		due = append(due, e.comment)
	}
	return due
}

// sortsBefore orders by vpos, then by store sequence. Comments without a
// sequence follow the sequenced ones at the same vpos and keep arrival order.
func sortsBefore(a, b Comment) bool {
	if a.Vpos != b.Vpos {
		return a.Vpos < b.Vpos
	}
	if (a.Seq > 0) != (b.Seq > 0) {
		return a.Seq > 0
	}
	return a.Seq < b.Seq
}

// Reset makes every comment eligible again without dropping any.
func (ix *Index) Reset() {
	for _, e := range ix.entries {
		e.presented = false
	}
}

// InsertLive adds a comment pushed while the video is open. A comment whose id
// is already indexed is ignored. When its vpos lies within the slack window of
// cursor the comment is marked presented and reported due right away;
// otherwise Advance picks it up when playback reaches it.
func (ix *Index) InsertLive(c Comment, cursor float64) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, fmt.Errorf("insert live comment: %w", err)
	}
	if _, dup := ix.byID[c.ID]; dup {
		return false, nil
	}

	pos := sort.Search(len(ix.entries), func(i int) bool {
		return sortsBefore(c, ix.entries[i].comment)
	})
	e := &entry{comment: c}
	ix.entries = append(ix.entries, nil)
	copy(ix.entries[pos+1:], ix.entries[pos:])
	ix.entries[pos] = e
	ix.byID[c.ID] = e

	if math.Abs(c.Vpos-cursor) <= ix.slack {
		e.presented = true
		return true, nil
	}
	return false, nil
}

func (ix *Index) Contains(id string) bool {
	_, ok := ix.byID[id]
	return ok
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

func (ix *Index) Slack() float64 {
	return ix.slack
}
