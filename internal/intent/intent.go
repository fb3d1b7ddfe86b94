// Package intent classifies a user message into one of a closed set of
// intents. Classification is a pure function of the message text, the
// user's dialog mode, and whether cached search results exist.
package intent

import (
	"strings"

	"github.com/wecom-tools/quarkbot/internal/conversation"
	"github.com/wecom-tools/quarkbot/internal/quark"
)

// Kind is the classified intent.
type Kind int

const (
	Unknown Kind = iota
	SetCredential
	Verify
	Help
	Search
	PageNext
	PagePrev
	SelectIndex
	SingleLink
	MultiLink
	Error
)

func (k Kind) String() string {
	switch k {
	case SetCredential:
		return "set_credential"
	case Verify:
		return "verify"
	case Help:
		return "help"
	case Search:
		return "search"
	case PageNext:
		return "page_next"
	case PagePrev:
		return "page_prev"
	case SelectIndex:
		return "select_index"
	case SingleLink:
		return "single_link"
	case MultiLink:
		return "multi_link"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Intent is a classified message.
type Intent struct {
	Kind  Kind
	Text  string   // credential value, search keyword, or error message
	Index int      // 1-based selection for SelectIndex
	Links []string // share links for SingleLink / MultiLink
}

const credentialPrefix = "cookie:"

var (
	nextWords = map[string]bool{"n": true, "next": true, "下一页": true}
	prevWords = map[string]bool{"p": true, "prev": true, "previous": true, "上一页": true}
)

// Classify maps a message to an intent. Precedence: explicit commands,
// then share links, then pagination keywords, then a numeric index
// (the last two only when results exist), then mode-implied free text.
func Classify(text string, mode conversation.Mode, hasResults bool) Intent {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	// Explicit commands win over everything.
	if strings.HasPrefix(lower, credentialPrefix) {
		value := strings.TrimSpace(trimmed[len(credentialPrefix):])
		if value == "" {
			return Intent{Kind: Error, Text: "credential value is empty"}
		}
		return Intent{Kind: SetCredential, Text: value}
	}
	if lower == "verify" {
		return Intent{Kind: Verify}
	}
	if lower == "help" {
		return Intent{Kind: Help}
	}
	if rest, ok := strings.CutPrefix(trimmed, "/search"); ok {
		keyword := strings.TrimSpace(rest)
		if keyword == "" {
			return Intent{Kind: Error, Text: "search keyword is empty"}
		}
		return Intent{Kind: Search, Text: keyword}
	}

	// Share links force a transfer regardless of mode.
	if links := quark.ExtractLinks(text); len(links) > 0 {
		if len(links) == 1 {
			return Intent{Kind: SingleLink, Links: links}
		}
		return Intent{Kind: MultiLink, Links: links}
	}

	// Pagination and index selection only make sense over cached results.
	if hasResults {
		if nextWords[lower] {
			return Intent{Kind: PageNext}
		}
		if prevWords[lower] {
			return Intent{Kind: PagePrev}
		}
		if idx, ok := parseIndex(trimmed); ok {
			return Intent{Kind: SelectIndex, Index: idx}
		}
	}

	// Mode-implied free text.
	if mode == conversation.ModeSearch && trimmed != "" {
		return Intent{Kind: Search, Text: trimmed}
	}

	return Intent{Kind: Unknown, Text: trimmed}
}

// parseIndex accepts a bare positive decimal number.
func parseIndex(s string) (int, bool) {
	if s == "" || len(s) > 6 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n < 1 {
		return 0, false
	}
	return n, true
}
