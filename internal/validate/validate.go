package validate

import (
	"fmt"
	"unicode/utf8"
)

// Text field length limits, shared by the API and the /api/limits endpoint.
const (
	MaxTitleLength       = 500
	MaxCommentTextLength = 200
	MaxColorLength       = 16
)

// checkLen counts runes: comment text is routinely CJK.
func checkLen(value string, max int, field string) string {
	if utf8.RuneCountInString(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func Title(s string) string       { return checkLen(s, MaxTitleLength, "title") }
func CommentText(s string) string { return checkLen(s, MaxCommentTextLength, "comment") }
func Color(s string) string       { return checkLen(s, MaxColorLength, "color") }

// FieldLimits returns a map of field names to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"title":       MaxTitleLength,
		"commentText": MaxCommentTextLength,
		"color":       MaxColorLength,
	}
}
