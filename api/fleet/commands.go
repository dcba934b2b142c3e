package fleet

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/fleetdispatch/core/dispatch"
	"github.com/kilianp07/fleetdispatch/core/model"
)

type reasonBody struct {
	Reason string `json:"reason"`
}

type pairBody struct {
	VehicleID string `json:"vehicle_id"`
	DriverID  string `json:"driver_id"`
}

type completeBody struct {
	Feedback *model.Feedback `json:"feedback,omitempty"`
}

type statusBody struct {
	Status model.DriverStatus `json:"status"`
}

type assignBody struct {
	AgentID string `json:"agent_id"`
}

type resolveBody struct {
	Resolution string `json:"resolution"`
}

// command decodes the body into B, resolves the actor and runs fn.
func command[B any](h *handlers, w http.ResponseWriter, r *http.Request, fn func(actor, id string, body B) (any, int, error)) {
	a, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var body B
	if err := decode(r, &body); err != nil {
		h.fail(w, err)
		return
	}
	res, code, err := fn(a, chi.URLParam(r, "id"), body)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonStatus(w, code, res)
}

// done reports the snapshot version reached once the command returned.
func (h *handlers) done(err error) (any, int, error) {
	return map[string]any{"version": h.coord.Snapshot().Version()}, http.StatusOK, err
}

func (h *handlers) createTrip(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, _ string, in dispatch.TripInput) (any, int, error) {
		id, err := h.coord.CreateTrip(a, in)
		return map[string]string{"id": id}, http.StatusCreated, err
	})
}

func (h *handlers) editTrip(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, p dispatch.TripPatch) (any, int, error) {
		t, err := h.coord.EditTrip(a, id, p)
		return t, http.StatusOK, err
	})
}

func (h *handlers) dispatchTrip(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, b pairBody) (any, int, error) {
		return h.done(h.coord.DispatchTrip(a, id, b.VehicleID, b.DriverID))
	})
}

func (h *handlers) autoDispatch(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, _ struct{}) (any, int, error) {
		s, err := h.coord.AutoDispatch(r.Context(), a, id)
		return s, http.StatusOK, err
	})
}

func (h *handlers) advanceTrip(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, _ struct{}) (any, int, error) {
		st, err := h.coord.AdvanceTrip(a, id)
		return map[string]model.TripStatus{"status": st}, http.StatusOK, err
	})
}

func (h *handlers) completeTrip(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, b completeBody) (any, int, error) {
		return h.done(h.coord.CompleteTrip(a, id, b.Feedback))
	})
}

func (h *handlers) cancelTrip(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, b reasonBody) (any, int, error) {
		return h.done(h.coord.CancelTrip(a, id, b.Reason))
	})
}

func (h *handlers) rescheduleTrip(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, b reasonBody) (any, int, error) {
		return h.done(h.coord.RescheduleTrip(a, id, b.Reason))
	})
}

func (h *handlers) reportIncident(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, _ string, in dispatch.IncidentInput) (any, int, error) {
		id, err := h.coord.ReportIncident(a, in)
		return map[string]string{"id": id}, http.StatusCreated, err
	})
}

func (h *handlers) acknowledgeIncident(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, _ struct{}) (any, int, error) {
		return h.done(h.coord.AcknowledgeIncident(a, id))
	})
}

func (h *handlers) assignIncident(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, b assignBody) (any, int, error) {
		return h.done(h.coord.AssignIncident(a, id, b.AgentID))
	})
}

func (h *handlers) resolveIncident(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, b resolveBody) (any, int, error) {
		return h.done(h.coord.ResolveIncident(a, id, b.Resolution))
	})
}

func (h *handlers) submitRequest(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, _ string, in dispatch.RequestInput) (any, int, error) {
		id, err := h.coord.SubmitRequest(a, in)
		return map[string]string{"id": id}, http.StatusCreated, err
	})
}

func (h *handlers) approveRequest(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, _ struct{}) (any, int, error) {
		tripID, err := h.coord.ApproveRequest(a, id)
		return map[string]string{"trip_id": tripID}, http.StatusOK, err
	})
}

func (h *handlers) rejectRequest(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, b reasonBody) (any, int, error) {
		return h.done(h.coord.RejectRequest(a, id, b.Reason))
	})
}

func (h *handlers) sendToMaintenance(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, b reasonBody) (any, int, error) {
		return h.done(h.coord.SendToMaintenance(a, id, b.Reason))
	})
}

func (h *handlers) completeMaintenance(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, _ struct{}) (any, int, error) {
		return h.done(h.coord.CompleteMaintenance(a, id))
	})
}

func (h *handlers) setDriverStatus(w http.ResponseWriter, r *http.Request) {
	command(h, w, r, func(a, id string, b statusBody) (any, int, error) {
		if b.Status == 0 {
			return nil, 0, model.InvalidInput("status is required")
		}
		return h.done(h.coord.SetDriverStatus(a, id, b.Status))
	})
}
