package enums

import "fmt"

// IntervalStatus is the lifecycle state of a usage interval. An interval is
// ACTIVE from the moment a total-bytes value is established until the next
// storage mutation closes it; it never leaves COMPLETED.
type IntervalStatus string

const (
	IntervalStatusActive    IntervalStatus = "active"
	IntervalStatusCompleted IntervalStatus = "completed"
)

var validIntervalStatuses = []IntervalStatus{
	IntervalStatusActive,
	IntervalStatusCompleted,
}

// IsValid reports whether the value matches the canonical interval status enum.
func (i IntervalStatus) IsValid() bool {
	for _, candidate := range validIntervalStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseIntervalStatus converts the raw string to IntervalStatus.
func ParseIntervalStatus(value string) (IntervalStatus, error) {
	for _, candidate := range validIntervalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid interval status %q", value)
}
