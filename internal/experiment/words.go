package experiment

import (
	"fmt"
	"strings"
)

// WordList is the canonical set of study words.
// Membership is checked on normalized (trimmed, lowercased) words.
type WordList struct {
	display []string
	index   map[string]struct{}
}

// Normalize trims surrounding whitespace and lowercases a word
func Normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// NewWordList builds a word list, rejecting empty entries and duplicates
func NewWordList(words []string) (*WordList, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("word list is empty")
	}

	l := &WordList{
		display: make([]string, 0, len(words)),
		index:   make(map[string]struct{}, len(words)),
	}
	for i, w := range words {
		n := Normalize(w)
		if n == "" {
			return nil, fmt.Errorf("word %d is empty", i+1)
		}
		if _, dup := l.index[n]; dup {
			return nil, fmt.Errorf("duplicate word %q", w)
		}
		l.index[n] = struct{}{}
		l.display = append(l.display, strings.TrimSpace(w))
	}
	return l, nil
}

// Contains reports whether a normalized word is on the list
func (l *WordList) Contains(normalized string) bool {
	_, ok := l.index[normalized]
	return ok
}

// Display returns the words as they are shown to participants
func (l *WordList) Display() []string {
	return append([]string(nil), l.display...)
}

// Len returns the number of words
func (l *WordList) Len() int {
	return len(l.display)
}
