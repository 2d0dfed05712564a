package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nicoplay/nicoplay/internal/danmaku"
)

type commandKind int

const (
	commandComment commandKind = iota
	commandPause
	commandPlay
	commandSeek
	commandQuit
)

type command struct {
	kind  commandKind
	draft danmaku.Draft
	seek  float64
}

// parseCommand reads one line of viewer input. Plain text is a flow comment;
// lines starting with a slash control playback or pick a display mode, for
// example "/top red hello" or "/seek 90".
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: commandComment, draft: danmaku.Draft{Text: line}}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "pause":
		return command{kind: commandPause}, nil
	case "play":
		return command{kind: commandPlay}, nil
	case "quit", "q":
		return command{kind: commandQuit}, nil
	case "seek":
		pos, err := strconv.ParseFloat(rest, 64)
		if err != nil || pos < 0 {
			return command{}, fmt.Errorf("seek needs a position in seconds, got %q", rest)
		}
		return command{kind: commandSeek, seek: pos}, nil
	case "flow", "top", "bottom", "naka", "ue", "shita":
		d := danmaku.Draft{DisplayMode: name}
		if color, text, ok := strings.Cut(rest, " "); ok && isPaletteColor(color) {
			d.Color = color
			rest = text
		}
		d.Text = rest
		return command{kind: commandComment, draft: d}, nil
	}
	return command{}, fmt.Errorf("unknown command /%s", name)
}

func isPaletteColor(s string) bool {
	if s == "" {
		return false
	}
	_, ok := danmaku.NormalizeColor(s)
	return ok
}
