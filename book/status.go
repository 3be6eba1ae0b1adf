package book

import "fmt"

// Status is the loan state of an Instance
type Status string

const (
	StatusAvailable   Status = "Available"
	StatusMaintenance Status = "Maintenance"
	StatusLoaned      Status = "Loaned"
	StatusReserved    Status = "Reserved"
)

// DefaultStatus is assigned when a copy is created without one
const DefaultStatus = StatusMaintenance

// Statuses returns the closed set of status values in display order
func Statuses() []Status {
	return []Status{StatusAvailable, StatusMaintenance, StatusLoaned, StatusReserved}
}

// ParseStatus returns the Status named by s or an error if s is outside the set
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}
