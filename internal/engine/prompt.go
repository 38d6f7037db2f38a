package engine

import (
	"strings"

	"github.com/memodiary/memo/internal/intent"
)

// User-safe fallback replies, one per provider failure class. The wording is
// honest about the failure without surfacing error internals.
const (
	fallbackRateLimited = "My mind is racing a little too fast right now... 🤯 Give me a moment and ask me again."
	fallbackUnavailable = "I'm feeling a bit sleepy right now... 😴 Could you try me again in a minute?"
	fallbackBlocked     = "I'd rather hold that thought gently than answer it directly. 🕊️ Want to talk about how it's making you feel instead?"
	fallbackEmpty       = "I'm here, just lost for words for a moment. 😌 Could you say that another way?"
)

const personaPrompt = `You are Memo, a warm and attentive diary companion.

Rules you always follow:
- Everything the user shares is private to them. Never reference other people's diaries or sessions.
- When the user asks about their own life, answer from the MEMORY CONTEXT below. Check it before anything else.
- If the context has no record of what they ask, say honestly that you have no record. Never invent memories, dates, or details.
- Keep replies concise and conversational. Mirror the user's language.`

// System notes appended when retrieval produced nothing, so the model neither
// hallucinates a memory nor apologizes for missing context on world questions.
const (
	noteNoMemories = "SYSTEM NOTE: No relevant memories were found for this question. Tell the user honestly that you have no record of it. Do not invent details."
	noteGeneral    = "SYSTEM NOTE: This is a general question. Answer from your own knowledge; the diary is not relevant."
)

// buildSystemPrompt assembles the generation system prompt for one turn.
func buildSystemPrompt(memoryContext string, in intent.Intent) string {
	var b strings.Builder
	b.WriteString(personaPrompt)

	if strings.TrimSpace(memoryContext) != "" {
		b.WriteString("\n\nMEMORY CONTEXT:\n")
		b.WriteString(memoryContext)
		return b.String()
	}

	b.WriteString("\n\n")
	switch in {
	case intent.IntentGeneralKnowledge, intent.IntentChat:
		b.WriteString(noteGeneral)
	default:
		b.WriteString(noteNoMemories)
	}
	return b.String()
}
