package recordstore

import (
	"fmt"

	"github.com/google/uuid"
)

// NewPushKey returns a unique child key. Keys are UUIDv7 strings, so sorting
// them lexically orders children by creation time.
func NewPushKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("recordstore: push key: %w", err)
	}
	return id.String(), nil
}
