package channels

import "strings"

// TelegramMaxMessageLength is the Bot API limit for one text message.
const TelegramMaxMessageLength = 4096

// SplitMessage cuts text into parts of at most limit runes. A cut prefers the
// last newline in the second half of the window so listings are not broken
// mid-line. limit <= 0 disables splitting.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		window := string(runes[:limit])
		if idx := strings.LastIndex(window, "\n"); idx >= 0 {
			if pos := len([]rune(window[:idx])); pos >= limit/2 {
				cut = pos + 1
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
