package graph

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis marks truncated text.
const Ellipsis = "…"

// Wrap fills lines greedily with whole words up to maxChars runes each.
// Node heights and the renderer both measure body text with it.
// Words longer than a line are split. When the text needs more than
// maxLines lines the last kept line ends with an ellipsis.
func Wrap(text string, maxChars, maxLines int) []string {
	if maxChars < 1 || maxLines < 1 {
		return nil
	}
	var lines []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		lines = append(lines, cur.String())
		cur.Reset()
		curLen = 0
	}

	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > maxChars {
			if curLen > 0 {
				flush()
			}
			r := []rune(word)
			lines = append(lines, string(r[:maxChars]))
			word = string(r[maxChars:])
		}
		n := utf8.RuneCountInString(word)
		if n == 0 {
			continue
		}
		switch {
		case curLen == 0:
			cur.WriteString(word)
			curLen = n
		case curLen+1+n <= maxChars:
			cur.WriteByte(' ')
			cur.WriteString(word)
			curLen += 1 + n
		default:
			flush()
			cur.WriteString(word)
			curLen = n
		}
	}
	if curLen > 0 {
		flush()
	}

	if len(lines) <= maxLines {
		return lines
	}
	lines = lines[:maxLines]
	last := []rune(lines[maxLines-1])
	if len(last) >= maxChars {
		last = last[:maxChars-1]
	}
	lines[maxLines-1] = strings.TrimRight(string(last), " ") + Ellipsis
	return lines
}
