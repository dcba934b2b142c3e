package fleet

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/overview"
	"github.com/kilianp07/fleetdispatch/core/store"
	"github.com/kilianp07/fleetdispatch/pkg/export"
)

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]any{"status": "ok", "version": h.coord.Snapshot().Version()})
}

func (h *handlers) listVehicles(w http.ResponseWriter, r *http.Request) {
	st, err := optional(r, "status", model.ParseVehicleStatus)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, h.coord.Snapshot().Vehicles(store.VehicleFilter{Status: st, DriverID: r.URL.Query().Get("driver_id")}))
}

func (h *handlers) getVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, ok := h.coord.Snapshot().Vehicle(id)
	if !ok {
		h.fail(w, &model.NotFoundError{Kind: model.KindVehicle, ID: id})
		return
	}
	jsonOK(w, v)
}

func (h *handlers) listDrivers(w http.ResponseWriter, r *http.Request) {
	st, err := optional(r, "status", model.ParseDriverStatus)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, h.coord.Snapshot().Drivers(store.DriverFilter{Status: st}))
}

func (h *handlers) getDriver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := h.coord.Snapshot().Driver(id)
	if !ok {
		h.fail(w, &model.NotFoundError{Kind: model.KindDriver, ID: id})
		return
	}
	jsonOK(w, d)
}

func (h *handlers) listTrips(w http.ResponseWriter, r *http.Request) {
	st, err := optional(r, "status", model.ParseTripStatus)
	if err != nil {
		h.fail(w, err)
		return
	}
	pr, err := optional(r, "priority", model.ParsePriority)
	if err != nil {
		h.fail(w, err)
		return
	}
	q := r.URL.Query()
	jsonOK(w, h.coord.Snapshot().Trips(store.TripFilter{
		Status:     st,
		Priority:   pr,
		VehicleID:  q.Get("vehicle_id"),
		DriverID:   q.Get("driver_id"),
		ActiveOnly: q.Get("active") == "true",
	}))
}

func (h *handlers) getTrip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := h.coord.Snapshot().Trip(id)
	if !ok {
		h.fail(w, &model.NotFoundError{Kind: model.KindTrip, ID: id})
		return
	}
	jsonOK(w, t)
}

func (h *handlers) listIncidents(w http.ResponseWriter, r *http.Request) {
	st, err := optional(r, "status", model.ParseIncidentStatus)
	if err != nil {
		h.fail(w, err)
		return
	}
	sev, err := optional(r, "severity", model.ParseSeverity)
	if err != nil {
		h.fail(w, err)
		return
	}
	q := r.URL.Query()
	jsonOK(w, h.coord.Snapshot().Incidents(store.IncidentFilter{
		VehicleID:  q.Get("vehicle_id"),
		Status:     st,
		Severity:   sev,
		Unresolved: q.Get("unresolved") == "true",
	}))
}

func (h *handlers) getIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	i, ok := h.coord.Snapshot().Incident(id)
	if !ok {
		h.fail(w, &model.NotFoundError{Kind: model.KindIncident, ID: id})
		return
	}
	jsonOK(w, i)
}

func (h *handlers) listRequests(w http.ResponseWriter, r *http.Request) {
	st, err := optional(r, "status", model.ParseRequestStatus)
	if err != nil {
		h.fail(w, err)
		return
	}
	snap := h.coord.Snapshot()
	if st == 0 {
		jsonOK(w, snap.PendingRequests())
		return
	}
	jsonOK(w, snap.Requests(st))
}

type overviewResponse struct {
	overview.Overview
	OldestPendingSeconds float64 `json:"oldest_pending_seconds"`
}

func (h *handlers) overview(w http.ResponseWriter, r *http.Request) {
	snap := h.coord.Snapshot()
	jsonOK(w, overviewResponse{
		Overview:             overview.Compute(snap, h.lowFuel),
		OldestPendingSeconds: overview.Age(snap, h.now()).Seconds(),
	})
}

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339, s) }

func auditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{ActorID: q.Get("actor_id"), EntityID: q.Get("entity_id")}
	var err error
	if f.Action, err = optional(r, "action", model.ParseAuditAction); err != nil {
		return f, err
	}
	if f.Kind, err = optional(r, "entity_kind", model.ParseEntityKind); err != nil {
		return f, err
	}
	if f.Severity, err = optional(r, "severity", model.ParseSeverity); err != nil {
		return f, err
	}
	if f.Start, err = optional(r, "start", parseTime); err != nil {
		return f, err
	}
	if f.End, err = optional(r, "end", parseTime); err != nil {
		return f, err
	}
	if f.Limit, err = optional(r, "limit", strconv.Atoi); err != nil {
		return f, err
	}
	return f, nil
}

func (h *handlers) queryAudit(w http.ResponseWriter, r *http.Request) {
	f, err := auditFilter(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, h.coord.Ledger().Query(f))
}

func (h *handlers) exportAudit(w http.ResponseWriter, r *http.Request) {
	f, err := auditFilter(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	format := export.FormatJSON
	if s := r.URL.Query().Get("format"); s != "" {
		if format, err = export.ParseFormat(s); err != nil {
			h.fail(w, model.InvalidInput("%v", err))
			return
		}
	}
	if format == export.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := export.Write(w, format, h.coord.Ledger().Query(f)); err != nil {
		h.log.Errorf("audit export: %v", err)
	}
}

func (h *handlers) verifyAudit(w http.ResponseWriter, r *http.Request) {
	led := h.coord.Ledger()
	if err := led.Verify(); err != nil {
		jsonStatus(w, http.StatusConflict, map[string]any{"valid": false, "error": err.Error(), "entries": led.Len()})
		return
	}
	jsonOK(w, map[string]any{"valid": true, "entries": led.Len()})
}
