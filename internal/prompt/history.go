package prompt

import "strings"

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Turn is one chat message. Only the text of earlier turns is carried
// forward; charts from previous answers are not.
type Turn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// FormatHistory renders prior turns as a transcript with one line per turn.
// Any sender other than "user" is rendered as the assistant. Line breaks
// inside a turn are folded to spaces so the one-line-per-turn shape holds.
func FormatHistory(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, turn := range turns {
		if turn.Sender == SenderUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(foldLines(turn.Text))
		b.WriteByte('\n')
	}
	return b.String()
}

func foldLines(text string) string {
	if !strings.ContainsAny(text, "\r\n") {
		return text
	}
	return strings.Join(strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }), " ")
}

// SplitQuestion separates the current question (the last turn) from the
// history that precedes it.
func SplitQuestion(turns []Turn) (history []Turn, question string, ok bool) {
	if len(turns) == 0 {
		return nil, "", false
	}
	last := turns[len(turns)-1]
	return turns[:len(turns)-1], last.Text, true
}
