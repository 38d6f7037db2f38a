// Package router performs zero-cost query classification ahead of any model
// call: trivially answerable inputs (arithmetic, bare greetings) are settled
// locally, and the rest get a coarse personal/world/general hint.
package router

import (
	"regexp"
	"strconv"
	"strings"
)

// Category is the fast-path classification of an input.
type Category string

const (
	// CategoryTrivial inputs are answered without any model or store access.
	CategoryTrivial Category = "trivial"
	// CategoryPersonal inputs reference the user's own life or history.
	CategoryPersonal Category = "personal"
	// CategoryWorld inputs ask about external knowledge.
	CategoryWorld Category = "world"
	// CategoryGeneral is everything else.
	CategoryGeneral Category = "general"
)

// Result of fast classification. Answer is set only for arithmetic inputs.
type Result struct {
	Category Category
	Answer   string
}

var arithmeticRe = regexp.MustCompile(`^(\d+)\s*([+\-*/])\s*(\d+)$`)

// greetings that deserve a reply but no memory retrieval.
var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "sup": true,
	"hiya": true, "howdy": true, "good morning": true, "good afternoon": true,
	"good evening": true, "good night": true,
}

var personalKeywords = []string{
	"my ", "i ", "i'm", "i've", "me ", " me", "mine",
	"remember", "yesterday", "last week", "last month", "this week",
	"diary", "journal", "feel", "felt", "told you", "we talked",
}

var worldKeywords = []string{
	"what is", "what's", "who is", "who was", "where is",
	"capital of", "define", "explain", "how does", "history of",
}

// ClassifyFast classifies without I/O. Priority order: arithmetic, greeting,
// personal, world, general. It never fails; unmatchable input is general.
func ClassifyFast(text string) Result {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if m := arithmeticRe.FindStringSubmatch(trimmed); m != nil {
		return Result{Category: CategoryTrivial, Answer: evalArithmetic(m[1], m[2], m[3])}
	}

	if greetings[strings.TrimRight(lower, "!. ")] {
		return Result{Category: CategoryTrivial}
	}

	padded := " " + lower + " "
	for _, kw := range personalKeywords {
		if strings.Contains(padded, kw) {
			return Result{Category: CategoryPersonal}
		}
	}
	for _, kw := range worldKeywords {
		if strings.Contains(lower, kw) {
			return Result{Category: CategoryWorld}
		}
	}

	return Result{Category: CategoryGeneral}
}

func evalArithmetic(left, op, right string) string {
	a, errA := strconv.ParseInt(left, 10, 64)
	b, errB := strconv.ParseInt(right, 10, 64)
	if errA != nil || errB != nil {
		// Operand overflow; out of fast-path territory.
		return "undefined"
	}

	switch op {
	case "+":
		return strconv.FormatInt(a+b, 10)
	case "-":
		return strconv.FormatInt(a-b, 10)
	case "*":
		return strconv.FormatInt(a*b, 10)
	case "/":
		if b == 0 {
			return "undefined"
		}
		if a%b == 0 {
			return strconv.FormatInt(a/b, 10)
		}
		return strconv.FormatFloat(float64(a)/float64(b), 'g', -1, 64)
	}
	return "undefined"
}
