package enums

import "fmt"

// ReservationStatus maps to the reservation_status_enum enum in Postgres.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusFinalized ReservationStatus = "finalized"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusConfirmed,
	ReservationStatusCancelled,
	ReservationStatusFinalized,
}

// String implements fmt.Stringer.
func (s ReservationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical reservation status enum.
func (s ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// HoldsAvailability reports whether a reservation in this status still reduces
// computed availability without having touched the ledger.
func (s ReservationStatus) HoldsAvailability() bool {
	return s == ReservationStatusPending
}

// ParseReservationStatus converts raw input into ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
