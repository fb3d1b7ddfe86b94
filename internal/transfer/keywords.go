package transfer

import (
	"strings"
	"sync"
)

// Keywords is the in-memory banned keyword list. Matching is a
// case-insensitive substring test against entry names.
type Keywords struct {
	mu    sync.RWMutex
	words []string
}

// NewKeywords creates a list seeded with the given words.
func NewKeywords(words []string) *Keywords {
	k := &Keywords{}
	k.Add(words)
	return k
}

// Add merges words into the list, case-insensitively deduplicated.
// Returns how many were new.
func (k *Keywords) Add(words []string) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	added := 0
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		exists := false
		for _, have := range k.words {
			if strings.EqualFold(have, w) {
				exists = true
				break
			}
		}
		if !exists {
			k.words = append(k.words, w)
			added++
		}
	}
	return added
}

// List returns a copy of the current words.
func (k *Keywords) List() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]string(nil), k.words...)
}

// Match reports whether name contains any banned keyword.
func (k *Keywords) Match(name string) bool {
	lower := strings.ToLower(name)

	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, w := range k.words {
		if strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// ParseInput splits a user-supplied keyword line on half- and full-width
// commas.
func ParseInput(text string) []string {
	text = strings.ReplaceAll(text, "，", ",")
	parts := strings.Split(text, ",")

	var words []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			words = append(words, p)
		}
	}
	return words
}
