package validate

import (
	"strings"
	"testing"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid", "My Video", ""},
		{"empty", "", ""},
		{"at limit", strings.Repeat("a", MaxTitleLength), ""},
		{"over limit", strings.Repeat("a", MaxTitleLength+1), "title must be 500 characters or fewer"},
	}
	for _, tt := range tests {
		if got := Title(tt.input); got != tt.want {
			t.Errorf("Title(%q [len=%d]) = %q, want %q", tt.name, len(tt.input), got, tt.want)
		}
	}
}

func TestCommentText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid", "www", ""},
		{"at limit", strings.Repeat("w", MaxCommentTextLength), ""},
		{"multibyte at limit", strings.Repeat("草", MaxCommentTextLength), ""},
		{"over limit", strings.Repeat("w", MaxCommentTextLength+1), "comment must be 200 characters or fewer"},
		{"multibyte over limit", strings.Repeat("草", MaxCommentTextLength+1), "comment must be 200 characters or fewer"},
	}
	for _, tt := range tests {
		if got := CommentText(tt.input); got != tt.want {
			t.Errorf("CommentText(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestColor(t *testing.T) {
	if got := Color("#ffffff"); got != "" {
		t.Errorf("expected valid color, got %q", got)
	}
	if got := Color(strings.Repeat("f", MaxColorLength+1)); got != "color must be 16 characters or fewer" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestFieldLimits(t *testing.T) {
	limits := FieldLimits()
	if limits["title"] != MaxTitleLength {
		t.Errorf("expected title limit %d, got %d", MaxTitleLength, limits["title"])
	}
	if limits["commentText"] != MaxCommentTextLength {
		t.Errorf("expected commentText limit %d, got %d", MaxCommentTextLength, limits["commentText"])
	}
	if len(limits) != 3 {
		t.Errorf("expected 3 limits, got %d", len(limits))
	}
}
