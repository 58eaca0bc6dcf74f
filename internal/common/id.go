package common

import (
	"github.com/google/uuid"
)

// NewSnapshotID generates a unique analysis snapshot ID (plain UUID v4)
func NewSnapshotID() string {
	return uuid.New().String()
}

// IsSnapshotID reports whether id parses as a UUID
func IsSnapshotID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
