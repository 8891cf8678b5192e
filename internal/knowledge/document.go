// Package knowledge is the assistant's searchable corpus: static seed
// documents plus trips and organizers mirrored from the booking API.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/trekassist/internal/embedding"
)

// Type classifies a document.
type Type string

const (
	TypeEntity  Type = "entity"
	TypePolicy  Type = "policy"
	TypeFaq     Type = "faq"
	TypeGeneral Type = "general"
)

// Types lists every document type in a stable order.
var Types = []Type{TypeEntity, TypePolicy, TypeFaq, TypeGeneral}

// ParseType validates a type name. The empty string means "no filter".
func ParseType(s string) (Type, error) {
	if s == "" {
		return "", nil
	}
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("knowledge: unknown document type %q", s)
}

// Metadata keys set on entity documents.
const (
	MetaKind        = "kind"
	MetaTripID      = "tripId"
	MetaOrganizerID = "organizerId"
	MetaDestination = "destination"
	MetaCategories  = "categories"
	MetaPrice       = "price"
	MetaDuration    = "duration"
	MetaStartDate   = "startDate"
	MetaEndDate     = "endDate"
	MetaOrganizer   = "organizer"
	MetaLocation    = "location"
	MetaSpecialties = "specialties"
	MetaEmail       = "email"
	MetaCategory    = "category"
)

// Entity kinds stored under MetaKind.
const (
	KindTrip      = "trip"
	KindOrganizer = "organizer"
)

var (
	// ErrCorpusStale marks a refresh that failed; the previous snapshot
	// keeps serving.
	ErrCorpusStale = errors.New("knowledge: corpus is stale")
	// ErrNotReady is returned by Search before the first snapshot exists.
	ErrNotReady = errors.New("knowledge: corpus not indexed yet")
)

// Document is one searchable unit of knowledge.
type Document struct {
	ID            string            `json:"id" yaml:"id"`
	Type          Type              `json:"type" yaml:"type"`
	Title         string            `json:"title" yaml:"title"`
	Content       string            `json:"content" yaml:"content"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata"`
	Static        bool              `json:"static" yaml:"-"`
	Embedding     embedding.Vector  `json:"-" yaml:"-"`
	LastIndexedAt time.Time         `json:"last_indexed_at" yaml:"-"`

	hash string
}

// Field returns a metadata value and whether it is present and non-empty.
func (d Document) Field(key string) (string, bool) {
	v, ok := d.Metadata[key]
	return v, ok && v != ""
}

// Kind returns the entity kind, or "" for non-entity documents.
func (d Document) Kind() string {
	return d.Metadata[MetaKind]
}

// indexText is what gets embedded: the title carries signal the content
// may not repeat.
func (d Document) indexText() string {
	if d.Title == "" {
		return d.Content
	}
	return d.Title + ". " + d.Content
}

func contentHash(d Document) string {
	sum := sha256.Sum256([]byte(d.indexText()))
	return hex.EncodeToString(sum[:])
}
