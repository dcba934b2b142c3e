package model

import "time"

// RequestStatus is the review state of an incoming request.
type RequestStatus int

const (
	RequestPending RequestStatus = iota + 1
	RequestApproved
	RequestRejected
)

var requestStatusNames = []string{"PENDING", "APPROVED", "REJECTED"}

func (s RequestStatus) String() string { return enumName(s, requestStatusNames) }

// ParseRequestStatus converts the text form back to a RequestStatus.
func ParseRequestStatus(s string) (RequestStatus, error) {
	return parseEnum[RequestStatus]("request status", s, requestStatusNames)
}

func (s RequestStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RequestStatus) UnmarshalText(b []byte) error {
	v, err := ParseRequestStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// IncomingRequest is a transport request waiting for operator review.
type IncomingRequest struct {
	ID                   string        `json:"id"`
	Passenger            Passenger     `json:"passenger"`
	Pickup               Location      `json:"pickup"`
	Dropoff              Location      `json:"dropoff"`
	Priority             Priority      `json:"priority"`
	EstimatedDurationMin float64       `json:"estimated_duration_min"`
	Status               RequestStatus `json:"status"`
	TripID               string        `json:"trip_id,omitempty"`
	ReceivedAt           time.Time     `json:"received_at"`
	ResolvedAt           time.Time     `json:"resolved_at,omitempty"`
}
