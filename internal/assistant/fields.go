package assistant

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/flemzord/trekassist/internal/knowledge"
)

// fieldQuestion maps question phrasing to the trip metadata that answers it.
type fieldQuestion struct {
	key     string
	label   string
	phrases []string
}

var fieldQuestions = []fieldQuestion{
	{knowledge.MetaPrice, "price", []string{"price", "prices", "cost", "costs", "how much", "fee", "fees", "charges"}},
	{knowledge.MetaDuration, "duration", []string{"how long", "duration", "how many days"}},
	{knowledge.MetaStartDate, "start date", []string{"when does", "when is", "start date", "departure", "dates"}},
}

// requestedFields returns the trip fields the message asks about.
func requestedFields(message string) []fieldQuestion {
	padded := " " + strings.Join(strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ") + " "

	var out []fieldQuestion
	for _, q := range fieldQuestions {
		for _, p := range q.phrases {
			if strings.Contains(padded, " "+p+" ") {
				out = append(out, q)
				break
			}
		}
	}
	return out
}

// missingFields finds the best trip document among docs and reports which
// of the requested fields it lacks. It returns no document when none of
// docs is a trip.
func missingFields(docs []knowledge.Result, asked []fieldQuestion) (knowledge.Result, []fieldQuestion, bool) {
	if len(asked) == 0 {
		return knowledge.Result{}, nil, false
	}
	for _, r := range docs {
		if r.Document.Kind() != knowledge.KindTrip {
			continue
		}
		var missing []fieldQuestion
		for _, q := range asked {
			if _, ok := r.Document.Field(q.key); !ok {
				missing = append(missing, q)
			}
		}
		return r, missing, true
	}
	return knowledge.Result{}, nil, false
}

func labels(qs []fieldQuestion) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.label
	}
	return out
}

// missingAnswer says which details of doc are not published instead of
// guessing them.
func missingAnswer(doc knowledge.Document, missing []fieldQuestion) string {
	who := "the organizer"
	if org, ok := doc.Field(knowledge.MetaOrganizer); ok {
		who = org
	}
	what := strings.Join(labels(missing), " and ")
	return fmt.Sprintf("I found %s, but its %s isn't published yet. "+
		"Please check with %s for the exact %s, or I can connect you with our support team.",
		doc.Title, what, who, what)
}
