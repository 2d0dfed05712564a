package danmaku

import (
	"math"
	"regexp"
	"strings"

	"github.com/nicoplay/nicoplay/internal/validate"
)

type DisplayMode string

const (
	ModeFlow   DisplayMode = "flow"
	ModeTop    DisplayMode = "top"
	ModeBottom DisplayMode = "bottom"
)

// Pinned reports whether the mode holds the comment at an edge instead of moving it.
func (m DisplayMode) Pinned() bool {
	return m == ModeTop || m == ModeBottom
}

type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

const DefaultColor = "#ffffff"

// Comment is one danmaku record. Vpos is seconds on the video's own clock.
type Comment struct {
	ID          string      `json:"id"`
	VideoID     string      `json:"videoId,omitempty"`
	Seq         int64       `json:"seq,omitempty"`
	Text        string      `json:"text"`
	Vpos        float64     `json:"vpos"`
	DisplayMode DisplayMode `json:"displayMode"`
	Color       string      `json:"color"`
	Size        Size        `json:"size"`
	CreatedAt   string      `json:"createdAt,omitempty"`
}

// Validate checks the fields the timeline relies on.
func (c Comment) Validate() error {
	if c.ID == "" {
		return invalid("comment id is required")
	}
	if strings.TrimSpace(c.Text) == "" {
		return invalid("comment text is required")
	}
	if !validVpos(c.Vpos) {
		return invalid("vpos must be a non-negative number")
	}
	if c.DisplayMode != "" {
		if _, ok := ParseDisplayMode(string(c.DisplayMode)); !ok {
			return invalid("invalid display mode")
		}
	}
	return nil
}

// Draft is a comment as submitted by a viewer, before the store assigns an id.
// A nil Vpos means "now" to a player session; the HTTP API requires it.
type Draft struct {
	Text        string   `json:"text"`
	Vpos        *float64 `json:"vpos"`
	DisplayMode string   `json:"displayMode,omitempty"`
	Color       string   `json:"color,omitempty"`
	Size        string   `json:"size,omitempty"`
}

// Normalize trims and defaults the draft and applies every submission rule.
// The returned comment has no id yet.
func (d Draft) Normalize() (Comment, error) {
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return Comment{}, invalid("comment text is required")
	}
	if msg := validate.CommentText(text); msg != "" {
		return Comment{}, invalid(msg)
	}
	if d.Vpos == nil {
		return Comment{}, invalid("vpos is required")
	}
	if !validVpos(*d.Vpos) {
		return Comment{}, invalid("vpos must be a non-negative number")
	}
	mode, ok := ParseDisplayMode(d.DisplayMode)
	if !ok {
		return Comment{}, invalid("invalid display mode")
	}
	size, ok := ParseSize(d.Size)
	if !ok {
		return Comment{}, invalid("invalid size")
	}
	color, ok := NormalizeColor(d.Color)
	if !ok {
		return Comment{}, invalid("invalid color")
	}
	return Comment{
		Text:        text,
		Vpos:        *d.Vpos,
		DisplayMode: mode,
		Color:       color,
		Size:        size,
	}, nil
}

func validVpos(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseDisplayMode accepts the canonical names and the legacy naka/ue/shita aliases.
func ParseDisplayMode(s string) (DisplayMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flow", "naka":
		return ModeFlow, true
	case "top", "ue":
		return ModeTop, true
	case "bottom", "shita":
		return ModeBottom, true
	}
	return "", false
}

func ParseSize(s string) (Size, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m", "medium":
		return SizeMedium, true
	case "s", "small":
		return SizeSmall, true
	case "l", "large", "big":
		return SizeLarge, true
	}
	return "", false
}

var hexColor = regexp.MustCompile(`^#[0-9a-f]{6}$`)

var namedColors = map[string]string{
	"white":  "#ffffff",
	"red":    "#ff0000",
	"pink":   "#ff8080",
	"orange": "#ffc000",
	"yellow": "#ffff00",
	"green":  "#00ff00",
	"cyan":   "#00ffff",
	"blue":   "#0000ff",
	"purple": "#c000ff",
	"black":  "#000000",
}

// NormalizeColor returns a lowercase #rrggbb value for hex input or a palette name.
func NormalizeColor(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultColor, true
	}
	if msg := validate.Color(s); msg != "" {
		return "", false
	}
	if hex, ok := namedColors[s]; ok {
		return hex, true
	}
	if hexColor.MatchString(s) {
		return s, true
	}
	return "", false
}
