// Package trigger finds "@Ryco <prompt>//" commands in editable text and
// splices responses back in their place.
package trigger

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinPromptLen is the shortest prompt, in runes, that fires
const MinPromptLen = 2

// pattern matches the keyword, a non-greedy prompt body and a "//" that
// ends the line. Group 2 is the terminator; a CR before the line end is
// left outside the span.
var pattern = regexp.MustCompile(`(?im)@Ryco\s+(.+?)(//)\r?$`)

// Match is a trigger span in a field's text. Start and End are byte offsets.
type Match struct {
	Start  int
	End    int
	Prompt string
}

// Detect looks for a finished trigger in text. caret is the byte offset of
// the cursor. The span must end at or before the caret, before a line
// break (LF or CRLF) or at the end of the text.
func Detect(text string, caret int) (Match, bool) {
	if caret < 0 {
		caret = 0
	}
	if caret > len(text) {
		caret = len(text)
	}

	var candidates [][]int
	if loc := pattern.FindStringSubmatchIndex(text); loc != nil {
		candidates = append(candidates, loc)
	}
	// the terminator may sit right before the caret, mid-line
	if all := pattern.FindAllStringSubmatchIndex(text[:caret], -1); len(all) > 0 {
		candidates = append(candidates, all[len(all)-1])
	}

	for _, loc := range candidates {
		m := Match{
			Start:  loc[0],
			End:    loc[5],
			Prompt: strings.TrimSpace(text[loc[2]:loc[3]]),
		}
		if utf8.RuneCountInString(m.Prompt) < MinPromptLen {
			continue
		}
		if caret >= m.End || m.End == len(text) || text[m.End] == '\n' || text[m.End] == '\r' {
			return m, true
		}
	}
	return Match{}, false
}

// Insert replaces the match span in field's current text with response.
// The text is re-read first, and offsets are clamped to it, since the user
// may have kept typing.
func Insert(field Field, m Match, response string) error {
	text, err := field.Text()
	if err != nil {
		return err
	}

	start := clamp(m.Start, 0, len(text))
	end := clamp(m.End, start, len(text))

	if err := field.SetText(text[:start] + response + text[end:]); err != nil {
		return err
	}
	if n, ok := field.(InputNotifier); ok {
		n.NotifyInput()
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
