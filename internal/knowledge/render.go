package knowledge

import (
	"fmt"
	"strconv"
	"strings"
)

// Trip is a trip record as served by the booking API.
type Trip struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Destination   string         `json:"destination"`
	Categories    []string       `json:"categories"`
	Price         *float64       `json:"price"`
	DurationDays  *int           `json:"duration_days"`
	StartDate     string         `json:"startDate"`
	EndDate       string         `json:"endDate"`
	Schedule      []ScheduleDay  `json:"schedule"`
	Capacity      int            `json:"capacity"`
	PaymentConfig *PaymentConfig `json:"paymentConfig"`
	Organizer     *TripOrganizer `json:"organizer"`
	Difficulty    string         `json:"difficulty"`
	Status        string         `json:"status"`
}

// ScheduleDay is one itinerary day.
type ScheduleDay struct {
	Day        int      `json:"day"`
	Title      string   `json:"title"`
	Activities []string `json:"activities"`
}

// PaymentConfig describes how a trip is paid for.
type PaymentConfig struct {
	PaymentType    string   `json:"paymentType"`
	PaymentMethods []string `json:"paymentMethods"`
	RefundPolicy   string   `json:"refundPolicy"`
}

// TripOrganizer is the organizer summary embedded in a trip.
type TripOrganizer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Organizer is an organizer profile.
type Organizer struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Location     string   `json:"location"`
	Bio          string   `json:"bio"`
	Specialties  []string `json:"specialties"`
	Languages    []string `json:"languages"`
	ContactEmail string   `json:"contactEmail"`
	ContactPhone string   `json:"contactPhone"`
}

// FormatTrip renders the canonical text of a trip. Absent fields are left
// out rather than rendered as zero values.
func FormatTrip(t Trip) string {
	parts := []string{
		"Trip: " + t.Title,
		labeled("Destination", t.Destination),
		labeled("Description", t.Description),
		labeled("Categories", strings.Join(t.Categories, ", ")),
	}
	if t.Price != nil {
		parts = append(parts, "Price: ₹"+formatAmount(*t.Price))
	}
	if t.DurationDays != nil && *t.DurationDays > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %d days", *t.DurationDays))
	}
	if t.Capacity > 0 {
		parts = append(parts, fmt.Sprintf("Capacity: %d people", t.Capacity))
	}
	if len(t.Schedule) > 0 {
		days := make([]string, len(t.Schedule))
		for i, s := range t.Schedule {
			days[i] = fmt.Sprintf("Day %d: %s", s.Day, s.Title)
		}
		parts = append(parts, "Itinerary: "+strings.Join(days, "; "))
	}
	if pc := t.PaymentConfig; pc != nil {
		parts = append(parts, fmt.Sprintf("Payment: %s payment via %s", pc.PaymentType, strings.Join(pc.PaymentMethods, "/")))
		parts = append(parts, labeled("Refund Policy", pc.RefundPolicy))
	}
	if o := t.Organizer; o != nil && o.Name != "" {
		line := "Organizer: " + o.Name
		if o.Email != "" {
			line += " (" + o.Email + ")"
		}
		parts = append(parts, line)
	}
	return joinParts(parts)
}

// FormatOrganizer renders the canonical text of an organizer profile.
func FormatOrganizer(o Organizer) string {
	contact := o.ContactEmail
	if contact == "" {
		contact = o.Email
	}
	return joinParts([]string{
		"Organizer: " + o.Name,
		labeled("Location", o.Location),
		labeled("Bio", o.Bio),
		labeled("Specialties", strings.Join(o.Specialties, ", ")),
		labeled("Contact", contact),
	})
}

// TripDocument converts a trip into an entity document.
func TripDocument(t Trip) Document {
	meta := map[string]string{
		MetaKind:        KindTrip,
		MetaTripID:      t.ID,
		MetaDestination: t.Destination,
		MetaCategories:  strings.Join(t.Categories, ","),
		MetaStartDate:   t.StartDate,
		MetaEndDate:     t.EndDate,
	}
	if t.Price != nil {
		meta[MetaPrice] = formatAmount(*t.Price)
	}
	if t.DurationDays != nil && *t.DurationDays > 0 {
		meta[MetaDuration] = strconv.Itoa(*t.DurationDays)
	}
	if t.Organizer != nil {
		meta[MetaOrganizer] = t.Organizer.Name
	}
	return Document{
		ID:       "trip-" + t.ID,
		Type:     TypeEntity,
		Title:    t.Title,
		Content:  FormatTrip(t),
		Metadata: compact(meta),
	}
}

// OrganizerDocument converts an organizer into an entity document.
func OrganizerDocument(o Organizer) Document {
	return Document{
		ID:      "organizer-" + o.ID,
		Type:    TypeEntity,
		Title:   o.Name,
		Content: FormatOrganizer(o),
		Metadata: compact(map[string]string{
			MetaKind:        KindOrganizer,
			MetaOrganizerID: o.ID,
			MetaEmail:       o.Email,
			MetaLocation:    o.Location,
			MetaSpecialties: strings.Join(o.Specialties, ","),
		}),
	}
}

func labeled(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return label + ": " + value
}

func joinParts(parts []string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ". ")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func compact(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}
