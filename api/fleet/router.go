// Package fleet exposes the coordinator commands and the read model over
// HTTP JSON.
package fleet

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/fleetdispatch/core/dispatch"
	"github.com/kilianp07/fleetdispatch/core/logger"
)

// ActorHeader carries the id of the caller issuing a command.
const ActorHeader = "X-Actor-ID"

// Options configures the router.
type Options struct {
	// Token enables bearer authentication when non-empty.
	Token string
	// LowFuel is the threshold used by the overview.
	LowFuel float64
	Logger  logger.Logger
	Now     func() time.Time
}

type handlers struct {
	coord   *dispatch.Coordinator
	log     logger.Logger
	lowFuel float64
	now     func() time.Time
}

// NewRouter builds the API router.
func NewRouter(coord *dispatch.Coordinator, opts Options) http.Handler {
	h := &handlers{coord: coord, log: logger.OrNop(opts.Logger), lowFuel: opts.LowFuel, now: opts.Now}
	if h.lowFuel <= 0 {
		h.lowFuel = 20
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(opts.Token))

		r.Get("/vehicles", h.listVehicles)
		r.Get("/vehicles/{id}", h.getVehicle)
		r.Post("/vehicles/{id}/maintenance", h.sendToMaintenance)
		r.Post("/vehicles/{id}/maintenance/complete", h.completeMaintenance)

		r.Get("/drivers", h.listDrivers)
		r.Get("/drivers/{id}", h.getDriver)
		r.Put("/drivers/{id}/status", h.setDriverStatus)

		r.Get("/trips", h.listTrips)
		r.Post("/trips", h.createTrip)
		r.Get("/trips/{id}", h.getTrip)
		r.Patch("/trips/{id}", h.editTrip)
		r.Post("/trips/{id}/dispatch", h.dispatchTrip)
		r.Post("/trips/{id}/auto-dispatch", h.autoDispatch)
		r.Post("/trips/{id}/advance", h.advanceTrip)
		r.Post("/trips/{id}/complete", h.completeTrip)
		r.Post("/trips/{id}/cancel", h.cancelTrip)
		r.Post("/trips/{id}/reschedule", h.rescheduleTrip)

		r.Get("/incidents", h.listIncidents)
		r.Post("/incidents", h.reportIncident)
		r.Get("/incidents/{id}", h.getIncident)
		r.Post("/incidents/{id}/acknowledge", h.acknowledgeIncident)
		r.Post("/incidents/{id}/assign", h.assignIncident)
		r.Post("/incidents/{id}/resolve", h.resolveIncident)

		r.Get("/requests", h.listRequests)
		r.Post("/requests", h.submitRequest)
		r.Post("/requests/{id}/approve", h.approveRequest)
		r.Post("/requests/{id}/reject", h.rejectRequest)

		r.Get("/overview", h.overview)
		r.Get("/audit", h.queryAudit)
		r.Get("/audit/export", h.exportAudit)
		r.Get("/audit/verify", h.verifyAudit)
	})
	return r
}
