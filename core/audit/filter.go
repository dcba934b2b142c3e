package audit

import (
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// Filter selects ledger entries. Zero fields match everything; Start and
// End are inclusive.
type Filter struct {
	ActorID  string
	Action   model.AuditAction
	Kind     model.EntityKind
	EntityID string
	Severity model.Severity
	Start    time.Time
	End      time.Time
	// Limit keeps only the most recent matches when positive.
	Limit int
}

// Match reports whether e satisfies every set field.
func (f Filter) Match(e model.AuditEntry) bool {
	switch {
	case f.ActorID != "" && e.ActorID != f.ActorID:
		return false
	case f.Action != 0 && e.Action != f.Action:
		return false
	case f.Kind != 0 && e.EntityKind != f.Kind:
		return false
	case f.EntityID != "" && e.EntityID != f.EntityID:
		return false
	case f.Severity != 0 && e.Severity != f.Severity:
		return false
	case !f.Start.IsZero() && e.Timestamp.Before(f.Start):
		return false
	case !f.End.IsZero() && e.Timestamp.After(f.End):
		return false
	}
	return true
}

func (f Filter) limit(entries []model.AuditEntry) []model.AuditEntry {
	if f.Limit > 0 && len(entries) > f.Limit {
		return entries[len(entries)-f.Limit:]
	}
	return entries
}
