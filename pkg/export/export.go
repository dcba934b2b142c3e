// Package export renders audit entries for reporting tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json or csv, case insensitive.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Header is the fixed column set of an export.
var Header = []string{"id", "timestamp", "actorId", "action", "details", "entityId", "severity"}

// Record is the exported form of one audit entry.
type Record struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actorId"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	EntityID  string `json:"entityId"`
	Severity  string `json:"severity"`
}

// FromEntry projects an entry onto the export field set.
func FromEntry(e model.AuditEntry) Record {
	return Record{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:   e.ActorID,
		Action:    e.Action.String(),
		Details:   e.Details,
		EntityID:  e.EntityID,
		Severity:  e.SeverityName(),
	}
}

func (r Record) row() []string {
	return []string{r.ID, r.Timestamp, r.ActorID, r.Action, r.Details, r.EntityID, r.Severity}
}

// WriteJSON writes entries as a single JSON array.
func WriteJSON(w io.Writer, entries []model.AuditEntry) error {
	recs := make([]Record, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, FromEntry(e))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// WriteCSV writes entries as comma separated rows preceded by Header.
func WriteCSV(w io.Writer, entries []model.AuditEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(FromEntry(e).row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on f.
func Write(w io.Writer, f Format, entries []model.AuditEntry) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, entries)
	case FormatCSV:
		return WriteCSV(w, entries)
	}
	return fmt.Errorf("unknown export format %q", f)
}
