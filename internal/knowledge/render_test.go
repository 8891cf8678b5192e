package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestFormatTrip(t *testing.T) {
	t.Parallel()
	trip := Trip{
		ID:           "t1",
		Title:        "Kedarkantha Winter Trek",
		Destination:  "Uttarakhand",
		Description:  "Snow trek with a summit push.",
		Categories:   []string{"winter", "snow"},
		Price:        ptr(8999.0),
		DurationDays: ptr(6),
		Schedule:     []ScheduleDay{{Day: 1, Title: "Drive to Sankri"}, {Day: 2, Title: "Juda ka Talab"}},
		PaymentConfig: &PaymentConfig{
			PaymentType:    "full",
			PaymentMethods: []string{"upi", "card"},
			RefundPolicy:   "Full refund up to 7 days before",
		},
		Organizer: &TripOrganizer{Name: "Himalayan Hikers", Email: "hi@example.com"},
	}

	got := FormatTrip(trip)
	for _, want := range []string{
		"Trip: Kedarkantha Winter Trek",
		"Destination: Uttarakhand",
		"Categories: winter, snow",
		"Price: ₹8999",
		"Duration: 6 days",
		"Itinerary: Day 1: Drive to Sankri; Day 2: Juda ka Talab",
		"Payment: full payment via upi/card",
		"Refund Policy: Full refund up to 7 days before",
		"Organizer: Himalayan Hikers (hi@example.com)",
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, ". .")
}

func TestFormatTrip_OrganizerWithoutEmail(t *testing.T) {
	t.Parallel()
	got := FormatTrip(Trip{ID: "t3", Title: "Har Ki Dun", Organizer: &TripOrganizer{Name: "Trail Blazers"}})

	assert.Contains(t, got, "Organizer: Trail Blazers")
	assert.NotContains(t, got, "()")
}

func TestTripDocument_MissingPrice(t *testing.T) {
	t.Parallel()
	doc := TripDocument(Trip{ID: "t2", Title: "Nag Tibba", Destination: "Mussoorie"})

	assert.Equal(t, "trip-t2", doc.ID)
	assert.Equal(t, TypeEntity, doc.Type)
	assert.Equal(t, KindTrip, doc.Kind())
	_, ok := doc.Field(MetaPrice)
	assert.False(t, ok)
	assert.NotContains(t, doc.Content, "Price")
	_, hasEmpty := doc.Metadata[MetaStartDate]
	assert.False(t, hasEmpty, "empty metadata values are dropped")
}

func TestOrganizerDocument(t *testing.T) {
	t.Parallel()
	doc := OrganizerDocument(Organizer{
		ID:          "o1",
		Name:        "Trail Blazers",
		Email:       "tb@example.com",
		Location:    "Manali",
		Specialties: []string{"high altitude", "winter"},
	})

	assert.Equal(t, "organizer-o1", doc.ID)
	assert.Equal(t, KindOrganizer, doc.Kind())
	assert.True(t, strings.HasPrefix(doc.Content, "Organizer: Trail Blazers"))
	assert.Contains(t, doc.Content, "Contact: tb@example.com")
	v, _ := doc.Field(MetaSpecialties)
	assert.Equal(t, "high altitude,winter", v)
}
