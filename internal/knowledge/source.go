package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Source yields the live documents mirrored into the corpus.
type Source interface {
	Fetch(ctx context.Context) ([]Document, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Document, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context) ([]Document, error) { return f(ctx) }

// Default HTTP source settings.
const (
	DefaultBaseURL        = "http://localhost:4000"
	DefaultTripsPath      = "/api/trips"
	DefaultOrganizersPath = "/api/organizers"
	DefaultSourceTimeout  = 15 * time.Second

	maxResponseBytes = 16 << 20
)

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TripsPath      string        `yaml:"trips_path"`
	OrganizersPath string        `yaml:"organizers_path"`
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Defaults fills unset fields. BaseURL falls back to $API_BASE_URL.
func (c *HTTPSourceConfig) Defaults() {
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv("API_BASE_URL")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.TripsPath == "" {
		c.TripsPath = DefaultTripsPath
	}
	if c.OrganizersPath == "" {
		c.OrganizersPath = DefaultOrganizersPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultSourceTimeout
	}
}

// Validate checks the base URL.
func (c *HTTPSourceConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("knowledge: invalid base_url %q", c.BaseURL)
	}
	return nil
}

// HTTPSource reads trips and organizers from the booking API.
type HTTPSource struct {
	cfg    HTTPSourceConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPSource creates an HTTP source. A nil client gets one with the
// configured timeout.
func NewHTTPSource(cfg HTTPSourceConfig, client *http.Client, logger *slog.Logger) *HTTPSource {
	cfg.Defaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPSource{cfg: cfg, client: client, logger: logger}
}

// Fetch returns one document per non-cancelled trip and per organizer.
// Either endpoint failing fails the whole fetch: a partial list would
// delete the documents of the missing half.
func (s *HTTPSource) Fetch(ctx context.Context) ([]Document, error) {
	var trips []apiTrip
	if err := s.get(ctx, s.cfg.TripsPath, "trips", &trips); err != nil {
		return nil, err
	}
	var orgs []apiOrganizer
	if err := s.get(ctx, s.cfg.OrganizersPath, "organizers", &orgs); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(trips)+len(orgs))
	for _, t := range trips {
		trip := t.normalize()
		if trip.ID == "" || strings.EqualFold(trip.Status, "cancelled") {
			continue
		}
		docs = append(docs, TripDocument(trip))
	}
	for _, o := range orgs {
		org := o.normalize()
		if org.ID == "" {
			continue
		}
		docs = append(docs, OrganizerDocument(org))
	}
	s.logger.Debug("fetched live documents", "trips", len(trips), "organizers", len(orgs))
	return docs, nil
}

func (s *HTTPSource) get(ctx context.Context, path, envelope string, dst any) error {
	endpoint, err := url.JoinPath(s.cfg.BaseURL, path)
	if err != nil {
		return fmt.Errorf("knowledge: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("knowledge: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("knowledge: fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("knowledge: read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("knowledge: fetch %s: HTTP %d", path, resp.StatusCode)
	}
	return decodeList(body, envelope, dst)
}

// decodeList accepts a bare JSON array or an object wrapping it under
// "data" or the endpoint's own name.
func decodeList(body []byte, envelope string, dst any) error {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		return json.Unmarshal(body, dst)
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return fmt.Errorf("knowledge: decode %s: %w", envelope, err)
	}
	for _, key := range []string{envelope, "data", "items"} {
		if raw, ok := wrapped[key]; ok {
			return json.Unmarshal(raw, dst)
		}
	}
	return errors.New("knowledge: decode " + envelope + ": no list in response")
}

// apiTrip tolerates Mongo-style "_id" alongside "id".
type apiTrip struct {
	Trip
	MongoID string `json:"_id"`
}

func (a apiTrip) normalize() Trip {
	t := a.Trip
	if t.ID == "" {
		t.ID = a.MongoID
	}
	if t.DurationDays == nil {
		if days, ok := spanDays(t.StartDate, t.EndDate); ok {
			t.DurationDays = &days
		}
	}
	return t
}

type apiOrganizer struct {
	Organizer
	MongoID string `json:"_id"`
}

func (a apiOrganizer) normalize() Organizer {
	o := a.Organizer
	if o.ID == "" {
		o.ID = a.MongoID
	}
	return o
}

// spanDays rounds the distance between two timestamps up to whole days.
func spanDays(start, end string) (int, bool) {
	s, err1 := parseTime(start)
	e, err2 := parseTime(end)
	if err1 != nil || err2 != nil || !e.After(s) {
		return 0, false
	}
	return int(math.Ceil(e.Sub(s).Hours() / 24)), true
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
