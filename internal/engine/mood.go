package engine

import "strings"

// defaultMood is reported when the reply carries no readable mood signal.
const defaultMood = "😌"

// moodKeywords maps reply sentiment words to a glyph, checked only when the
// reply itself contains no emoji.
var moodKeywords = []struct {
	word string
	mood string
}{
	{"congratulations", "🎉"},
	{"wonderful", "😊"},
	{"glad", "😊"},
	{"happy", "😊"},
	{"sorry", "💙"},
	{"tough", "💙"},
	{"hard", "💙"},
	{"rest", "😴"},
	{"tired", "😴"},
}

// extractMood picks the mood glyph for a reply: the first emoji in the text
// wins, then a sentiment keyword, then the calm default.
func extractMood(reply string) string {
	for _, r := range reply {
		if isEmoji(r) {
			return string(r)
		}
	}

	lower := strings.ToLower(reply)
	for _, kw := range moodKeywords {
		if strings.Contains(lower, kw.word) {
			return kw.mood
		}
	}
	return defaultMood
}

// isEmoji covers the pictograph blocks that mood glyphs come from. Not a full
// Unicode emoji test; misc symbols outside these blocks are not moods.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F5FF: // symbols and pictographs
		return true
	case r >= 0x1F600 && r <= 0x1F64F: // emoticons
		return true
	case r >= 0x1F900 && r <= 0x1F9FF: // supplemental symbols
		return true
	case r >= 0x2764 && r <= 0x2764: // heavy black heart
		return true
	}
	return false
}
