// Package securitytest holds helpers for tests that need an audit trail
// without touching disk.
package securitytest

import (
	"github.com/flemzord/trekassist/internal/security"
)

// AuditCapacity is how many events NewAuditLogger keeps.
const AuditCapacity = 256

// NewAuditLogger returns an in-memory audit logger. Read what was logged
// with Events.
func NewAuditLogger() *security.AuditLogger {
	return security.NewAuditLogger(security.AuditLoggerConfig{Retain: AuditCapacity})
}

// Events returns everything l retained, oldest first, optionally limited
// to one type.
func Events(l *security.AuditLogger, typ security.EventType) []security.AuditEvent {
	recent := l.Recent(typ, 0)
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent
}
