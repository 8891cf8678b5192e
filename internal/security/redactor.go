package security

import (
	"regexp"
	"strings"
	"sync"
)

const (
	// RedactPlaceholder replaces secrets.
	RedactPlaceholder = "***REDACTED***"
	// ContactPlaceholder replaces customer contact details.
	ContactPlaceholder = "[contact]"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// Indian mobile numbers with optional +91/0 prefix and common separators,
	// plus any other 10-15 digit international number.
	phonePattern = regexp.MustCompile(`(?:\+91[\s\-]?|\b0)?[6-9]\d{4}[\s\-]?\d{5}\b|\+\d{1,3}[\s\-]?\d{6,14}\b`)

	// secretKey matches field names that hold secrets. It is anchored so
	// cache_key or input_tokens are left alone.
	secretKey = regexp.MustCompile(`(?i)^(?:[a-z0-9]+_)*(?:secret|token|password|pass|api_?key|credential|authorization)$`)
)

// Redactor scrubs secrets from text: known credential formats by pattern,
// and the exact values loaded at runtime. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a redactor with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral redacts secret wherever it appears. Empty values are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Track keeps the literal list in step with store, starting now.
func (r *Redactor) Track(store *CredentialStore) {
	store.OnChange(func() { r.SyncCredentials(store) })
	r.SyncCredentials(store)
}

// SyncCredentials replaces the literal list with the store's values.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = values
}

// Redact returns s with every known secret replaced by RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	return s
}

// RedactTree scrubs a decoded YAML or JSON document in place: values under
// secret-looking keys are replaced whole, other strings go through Redact.
// It returns v for convenience.
func (r *Redactor) RedactTree(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if s, ok := child.(string); ok && s != "" && secretKey.MatchString(k) {
				val[k] = RedactPlaceholder
				continue
			}
			val[k] = r.RedactTree(child)
		}
	case []any:
		for i, child := range val {
			val[i] = r.RedactTree(child)
		}
	case string:
		return r.Redact(val)
	}
	return v
}

// MaskContacts replaces e-mail addresses and phone numbers in s with
// ContactPlaceholder.
func MaskContacts(s string) string {
	s = emailPattern.ReplaceAllString(s, ContactPlaceholder)
	return phonePattern.ReplaceAllString(s, ContactPlaceholder)
}

// DefaultPatterns covers the credentials this service handles: provider
// API keys, payment gateway keys, bearer tokens and Redis URL passwords.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9\-_]{20,}`),
		regexp.MustCompile(`rzp_(?:live|test)_[A-Za-z0-9]{14,}`),
		regexp.MustCompile(`whsec_[A-Za-z0-9]{16,}`),
		regexp.MustCompile(`Bearer [A-Za-z0-9._\-]{16,}`),
		regexp.MustCompile(`rediss?://[^:@/\s]*:[^@\s]+@`),
	}
}
