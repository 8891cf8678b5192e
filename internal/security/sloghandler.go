package security

import (
	"context"
	"log/slog"
)

// HandlerOption configures a RedactingHandler.
type HandlerOption func(*RedactingHandler)

// WithContactMasking also masks customer e-mail addresses and phone
// numbers. Chat messages and search queries are logged at debug level and
// routinely carry both.
func WithContactMasking() HandlerOption {
	return func(h *RedactingHandler) { h.maskContacts = true }
}

// RedactingHandler scrubs secrets from the message and every attribute
// before handing the record to the wrapped handler. Attributes whose key
// looks like a secret (api_key, token, password...) are replaced whole.
type RedactingHandler struct {
	inner        slog.Handler
	redactor     *Redactor
	maskContacts bool
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps inner.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor, opts ...HandlerOption) *RedactingHandler {
	h := &RedactingHandler{inner: inner, redactor: redactor}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.scrub(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs scrubs attrs once, up front.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = h.redactAttr(a)
	}
	return h.wrap(h.inner.WithAttrs(scrubbed))
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return h.wrap(h.inner.WithGroup(name))
}

func (h *RedactingHandler) wrap(inner slog.Handler) *RedactingHandler {
	c := *h
	c.inner = inner
	return &c
}

func (h *RedactingHandler) scrub(s string) string {
	s = h.redactor.Redact(s)
	if h.maskContacts {
		s = MaskContacts(s)
	}
	return s
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() != slog.KindGroup && secretKey.MatchString(a.Key) && !isEmpty(a.Value) {
		return slog.String(a.Key, RedactPlaceholder)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(h.scrub(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		scrubbed := make([]slog.Attr, len(group))
		for i, ga := range group {
			scrubbed[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(scrubbed...)
	case slog.KindAny:
		// errors and other values still carrying text
		if s := a.Value.String(); h.scrub(s) != s {
			a.Value = slog.StringValue(h.scrub(s))
		}
	}
	return a
}

func isEmpty(v slog.Value) bool {
	return v.Kind() == slog.KindString && v.String() == ""
}
