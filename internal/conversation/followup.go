package conversation

import (
	"regexp"
	"strings"
	"unicode"
)

// FollowUpKind classifies how a message relates to the previous turn.
type FollowUpKind string

const (
	FollowUpNone          FollowUpKind = "none"
	FollowUpClarification FollowUpKind = "clarification"
	FollowUpContinuation  FollowUpKind = "continuation"
)

// Reference is the part of the context a follow-up points back to.
type Reference struct {
	LastIntent   Intent   `json:"last_intent,omitempty"`
	LastEntities []string `json:"last_entities,omitempty"`
	RelatedIDs   []string `json:"related_ids,omitempty"`
}

// FollowUp is the result of DetectFollowUp.
type FollowUp struct {
	IsFollowUp bool         `json:"is_follow_up"`
	Kind       FollowUpKind `json:"kind"`
	Reference  *Reference   `json:"reference,omitempty"`
}

var (
	clarificationWords = phraseSet{
		"what", "which", "how", "why", "where", "when", "more", "more about", "explain",
		"details", "about that", "elaborate", "tell me", "tell me more", "clarify",
	}
	continuationWords = phraseSet{
		"and", "also", "additionally", "furthermore", "what else", "anything else",
		"btw", "plus", "next", "then",
	}
	referenceWords = phraseSet{
		"it", "that", "this", "those", "these", "them", "one", "there", "same", "thing", "stuff",
	}
	fillerWords = phraseSet{
		"uh", "uhh", "umm", "hmm", "lol", "lmao", "asdf", "asd", "jk", "pls", "plz",
	}

	// General-knowledge questions stand on their own even mid-conversation.
	worldKnowledge = []*regexp.Regexp{
		regexp.MustCompile(`(?i)what is (the|a) capital`),
		regexp.MustCompile(`(?i)who (is|was|are)\b`),
		regexp.MustCompile(`(?i)what is (the|a) population`),
		regexp.MustCompile(`(?i)where is (the|a)\b`),
		regexp.MustCompile(`(?i)when (did|was)\b`),
		regexp.MustCompile(`(?i)how (tall|high|far|long|big|small) is`),
		regexp.MustCompile(`(?i)what are the|what is the (largest|biggest|smallest)`),
	}
)

const shortMessageWords = 6

// DetectFollowUp decides whether message continues the conversation
// described by view. Rules apply in order:
//
//  1. no context: never a follow-up;
//  2. a world-knowledge question without a reference word: not a follow-up;
//  3. short and referential or noisy, without "?": clarification;
//  4. clarification keyword plus reference word: clarification;
//  5. continuation keyword: continuation;
//  6. short or a question: clarification.
func DetectFollowUp(message string, view ContextView) FollowUp {
	none := FollowUp{Kind: FollowUpNone}
	if !view.HasContext() {
		return none
	}

	lower := strings.ToLower(strings.TrimSpace(message))
	ws := words(lower)
	isShort := len(strings.Fields(message)) <= shortMessageWords
	hasQuestion := strings.Contains(lower, "?")
	hasReference := referenceWords.in(ws)
	hasFiller := fillerWords.in(ws)
	noisy := hasFiller || mostlyPunctuation(lower)

	for _, re := range worldKnowledge {
		if re.MatchString(message) && !hasReference {
			return none
		}
	}

	ref := &Reference{
		LastIntent:   view.LastIntent,
		LastEntities: view.LastEntities,
		RelatedIDs:   view.RelatedIDs,
	}
	switch {
	case isShort && (hasReference || noisy) && !hasQuestion:
		return FollowUp{IsFollowUp: true, Kind: FollowUpClarification, Reference: ref}
	case clarificationWords.in(ws) && hasReference:
		return FollowUp{IsFollowUp: true, Kind: FollowUpClarification, Reference: ref}
	case continuationWords.in(ws):
		return FollowUp{IsFollowUp: true, Kind: FollowUpContinuation, Reference: ref}
	case isShort || hasQuestion:
		return FollowUp{IsFollowUp: true, Kind: FollowUpClarification, Reference: ref}
	}
	return none
}

// mostlyPunctuation reports whether more than 40% of s is neither a letter
// nor a digit.
func mostlyPunctuation(s string) bool {
	if s == "" {
		return false
	}
	var other, total int
	for _, r := range s {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			other++
		}
	}
	return float64(other) > float64(total)*0.4
}

// EnhanceWithContext prefixes a follow-up with the topic and entities it
// refers to, so retrieval sees what "it" means. Other messages pass
// through unchanged.
func EnhanceWithContext(message string, view ContextView) string {
	fu := DetectFollowUp(message, view)
	if !fu.IsFollowUp || fu.Reference == nil {
		return message
	}
	var parts []string
	if fu.Reference.LastIntent != IntentNone {
		parts = append(parts, "Previous topic: "+string(fu.Reference.LastIntent))
	}
	if len(fu.Reference.LastEntities) > 0 {
		parts = append(parts, "Mentioned: "+strings.Join(fu.Reference.LastEntities, ", "))
	}
	if len(parts) == 0 {
		return message
	}
	return "[Context: " + strings.Join(parts, " | ") + "]\n\nUser follow-up question: " + message
}
