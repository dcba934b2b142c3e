package model

import "fmt"

// DriverStatus is the duty state of a driver.
type DriverStatus int

const (
	DriverOnline DriverStatus = iota + 1
	DriverOffline
	DriverBusy
	DriverOnLeave
)

var driverStatusNames = []string{"ONLINE", "OFFLINE", "BUSY", "ON_LEAVE"}

// DriverStatuses lists every driver status in declaration order.
var DriverStatuses = []DriverStatus{DriverOnline, DriverOffline, DriverBusy, DriverOnLeave}

func (s DriverStatus) String() string { return enumName(s, driverStatusNames) }

// ParseDriverStatus converts the text form back to a DriverStatus.
func ParseDriverStatus(s string) (DriverStatus, error) {
	return parseEnum[DriverStatus]("driver status", s, driverStatusNames)
}

func (s DriverStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *DriverStatus) UnmarshalText(b []byte) error {
	v, err := ParseDriverStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Driver is a person able to operate a fleet vehicle.
type Driver struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name,omitempty" yaml:"name"`
	Status    DriverStatus `json:"status" yaml:"status"`
	VehicleID string       `json:"vehicle_id,omitempty" yaml:"vehicle_id"`
}

// Validate checks the static bounds of the record.
func (d Driver) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("driver id is required")
	}
	if d.Status < DriverOnline || d.Status > DriverOnLeave {
		return fmt.Errorf("driver %s: invalid status %d", d.ID, d.Status)
	}
	return nil
}

// Available reports whether the driver can accept a new assignment.
func (d Driver) Available() bool { return d.Status == DriverOnline }
