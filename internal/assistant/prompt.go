package assistant

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/trekassist/internal/conversation"
	"github.com/flemzord/trekassist/internal/knowledge"
)

const persona = `You are the support assistant of a trek booking marketplace. ` +
	`Answer using only the information provided below. ` +
	`If it does not cover the question, say so and offer to connect the traveller with the support team. ` +
	`Never invent prices, dates or contact details.`

const (
	noInfoAnswer = "I don't have specific information about that in our knowledge base. " +
		"Let me connect you with our support team for detailed assistance."
	noInfoConfidence = 0.1
	excerptLength    = 200
)

// systemPrompt assembles the persona, the retrieved documents, the recent
// history (newest kept, at most maxHistory characters) and any fields the
// model must not make up.
func systemPrompt(docs []knowledge.Result, view conversation.ContextView, maxHistory int, missing []string) string {
	var b strings.Builder
	b.WriteString(persona)

	if len(docs) > 0 {
		b.WriteString("\n\nRelevant information:")
		for i, r := range docs {
			fmt.Fprintf(&b, "\n[%d] %s (%s)\n%s", i+1, r.Document.Title, r.Document.Type, r.Document.Content)
		}
	}

	if h := formatHistory(view.RecentMessages, maxHistory); h != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(h)
	}

	if s := view.Summary; s != nil && (len(s.Topics) > 0 || len(s.Entities) > 0) {
		topics := make([]string, len(s.Topics))
		for i, t := range s.Topics {
			topics[i] = string(t)
		}
		fmt.Fprintf(&b, "\n\nEarlier in this conversation: topics %s; mentioned %s.",
			orNone(strings.Join(topics, ", ")), orNone(strings.Join(s.Entities, ", ")))
	}

	if len(missing) > 0 {
		fmt.Fprintf(&b, "\n\nThe following details are not available and must not be stated: %s.", strings.Join(missing, ", "))
	}
	return b.String()
}

// formatHistory renders messages oldest first, dropping the oldest ones
// until the total fits in limit characters.
func formatHistory(msgs []conversation.Message, limit int) string {
	if limit <= 0 || len(msgs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(msgs))
	total := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		line := roleLabel(msgs[i].Role) + ": " + msgs[i].Content
		n := utf8.RuneCountInString(line) + 1
		if total+n > limit {
			break
		}
		total += n
		lines = append(lines, line)
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

func roleLabel(r conversation.Role) string {
	switch r {
	case conversation.RoleUser:
		return "Customer"
	case conversation.RoleAssistant:
		return "Assistant"
	default:
		return "System"
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// fallbackAnswer quotes the top documents without calling a generator.
func fallbackAnswer(docs []knowledge.Result, n int) (string, float64) {
	if len(docs) == 0 || n <= 0 {
		return noInfoAnswer, noInfoConfidence
	}
	docs = docs[:min(n, len(docs))]

	var b strings.Builder
	b.WriteString("Here's what I found that may help:")
	for _, r := range docs {
		fmt.Fprintf(&b, "\n\n• %s: %s", r.Document.Title, excerpt(r.Document.Content, excerptLength))
	}
	b.WriteString("\n\nIf you need more detail, I can connect you with our support team.")
	return b.String(), confidence(docs)
}

// confidence is the mean score of docs, capped at 1.
func confidence(docs []knowledge.Result) float64 {
	if len(docs) == 0 {
		return noInfoConfidence
	}
	var sum float64
	for _, r := range docs {
		sum += r.Score
	}
	return min(sum/float64(len(docs)), 1)
}

// excerpt cuts s to at most n runes at a word boundary.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := string([]rune(s)[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
