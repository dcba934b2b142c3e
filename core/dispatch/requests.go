package dispatch

import (
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/audit"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/validator"
)

// RequestInput describes a transport request awaiting review.
type RequestInput struct {
	Passenger            model.Passenger `json:"passenger"`
	Pickup               model.Location  `json:"pickup"`
	Dropoff              model.Location  `json:"dropoff"`
	Priority             model.Priority  `json:"priority"`
	EstimatedDurationMin float64         `json:"estimated_duration_min"`
}

// SubmitRequest queues a PENDING request.
func (c *Coordinator) SubmitRequest(actor string, in RequestInput) (string, error) {
	var id string
	err := c.run("submitRequest", actor, func(o *op) error {
		if err := checkRide(in.Passenger, in.Pickup, in.Dropoff, &in.Priority, in.EstimatedDurationMin); err != nil {
			return err
		}
		r := model.IncomingRequest{
			ID:                   c.newID(),
			Passenger:            in.Passenger,
			Pickup:               in.Pickup,
			Dropoff:              in.Dropoff,
			Priority:             in.Priority,
			EstimatedDurationMin: in.EstimatedDurationMin,
			Status:               model.RequestPending,
			ReceivedAt:           o.now,
		}
		o.tx.PutRequest(r)
		o.record(audit.Record{Action: model.ActionRequestSubmitted, Kind: model.KindRequest, EntityID: r.ID,
			Details: fmt.Sprintf("%s request for %s", r.Priority, r.Passenger.Name), Current: r})
		id = r.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ApproveRequest turns a PENDING request into an unassigned SCHEDULED trip
// and returns the trip id.
func (c *Coordinator) ApproveRequest(actor, requestID string) (string, error) {
	var tripID string
	err := c.run("approveRequest", actor, func(o *op) error {
		r, err := o.request(requestID)
		if err != nil {
			return err
		}
		if err := validator.Request(r.ID, r.Status, model.RequestApproved); err != nil {
			return err
		}
		prev := r
		t := model.Trip{
			ID:                   c.newID(),
			RequestID:            r.ID,
			Passenger:            r.Passenger,
			Pickup:               r.Pickup,
			Dropoff:              r.Dropoff,
			Priority:             r.Priority,
			Status:               model.TripScheduled,
			EstimatedDurationMin: r.EstimatedDurationMin,
			CreatedAt:            o.now,
			UpdatedAt:            o.now,
		}
		r.Status = model.RequestApproved
		r.TripID = t.ID
		r.ResolvedAt = o.now
		o.tx.PutTrip(t)
		o.tx.PutRequest(r)
		o.record(audit.Record{Action: model.ActionRequestApproved, Kind: model.KindRequest, EntityID: r.ID,
			Details: "request approved as trip " + t.ID, Previous: prev, Current: r})
		tripID = t.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return tripID, nil
}

// RejectRequest declines a PENDING request.
func (c *Coordinator) RejectRequest(actor, requestID, reason string) error {
	return c.run("rejectRequest", actor, func(o *op) error {
		r, err := o.request(requestID)
		if err != nil {
			return err
		}
		if err := validator.Request(r.ID, r.Status, model.RequestRejected); err != nil {
			return err
		}
		prev := r
		r.Status = model.RequestRejected
		r.ResolvedAt = o.now
		o.tx.PutRequest(r)
		o.record(audit.Record{Action: model.ActionRequestRejected, Kind: model.KindRequest, EntityID: r.ID,
			Details: withReason("request rejected", reason), Previous: prev, Current: r})
		return nil
	})
}
