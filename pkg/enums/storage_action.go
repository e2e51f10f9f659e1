package enums

import "fmt"

// StorageAction describes the allowed values for the `action_type` column in
// storage_change_records.
type StorageAction string

const (
	StorageActionUpload StorageAction = "UPLOAD"
	StorageActionDelete StorageAction = "DELETE"
)

var validStorageActions = []StorageAction{
	StorageActionUpload,
	StorageActionDelete,
}

// IsValid reports whether the value matches the canonical storage action enum.
func (s StorageAction) IsValid() bool {
	for _, candidate := range validStorageActions {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStorageAction converts the raw string to StorageAction.
func ParseStorageAction(value string) (StorageAction, error) {
	for _, candidate := range validStorageActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid storage action %q", value)
}
