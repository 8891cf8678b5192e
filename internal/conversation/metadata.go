package conversation

import (
	"strings"
)

// intentRules are checked in order; the first match wins.
var intentRules = []struct {
	intent Intent
	words  phraseSet
}{
	{IntentBooking, phraseSet{"book", "booking", "reserve", "reservation"}},
	{IntentCancellation, phraseSet{"cancel", "refund", "cancellation"}},
	{IntentRecommendation, phraseSet{"recommend", "suggestion", "suggest", "best", "popular"}},
	{IntentSafety, phraseSet{"safety", "safe", "danger", "risk", "emergency"}},
	{IntentPacking, phraseSet{"pack", "packing", "gear", "equipment", "bring"}},
	{IntentWeather, phraseSet{"weather", "temperature", "rain", "snow", "climate"}},
	{IntentPayment, phraseSet{"payment", "pay", "cost", "price", "amount"}},
	{IntentGeneralHelp, phraseSet{"help", "support", "assist", "question"}},
}

var (
	places = phraseSet{
		"manali", "leh", "ladakh", "spiti", "himachal", "uttarakhand",
		"kashmir", "sikkim", "kedarkantha", "roopkund", "hampta",
		"triund", "chadar", "markha valley",
	}
	seasons      = phraseSet{"winter", "summer", "monsoon", "spring", "autumn"}
	difficulties = phraseSet{"easy", "moderate", "difficult", "challenging", "beginner"}

	positiveWords = phraseSet{"great", "good", "awesome", "excellent", "perfect", "love", "thanks", "thank"}
	negativeWords = phraseSet{"bad", "poor", "terrible", "awful", "problem", "issue", "complaint", "worried", "concern"}
)

// ExtractMetadata derives intent, entities and sentiment from a user
// message using fixed vocabularies. Place names are title-cased; seasons
// and difficulty levels stay lowercase.
func ExtractMetadata(message string) Metadata {
	ws := words(message)
	md := Metadata{Sentiment: SentimentNeutral}

	for _, rule := range intentRules {
		if rule.words.in(ws) {
			md.Intent = rule.intent
			break
		}
	}

	for _, p := range places.matches(ws) {
		md.Entities = append(md.Entities, titleCase(p))
	}
	md.Entities = append(md.Entities, seasons.matches(ws)...)
	md.Entities = append(md.Entities, difficulties.matches(ws)...)

	pos, neg := positiveWords.in(ws), negativeWords.in(ws)
	switch {
	case pos && !neg:
		md.Sentiment = SentimentPositive
	case neg && !pos:
		md.Sentiment = SentimentNegative
	}
	return md
}

func titleCase(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
