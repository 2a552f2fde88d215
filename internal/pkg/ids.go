package pkg

import "github.com/google/uuid"

// NewID returns an opaque unique identifier for players and games.
func NewID() string {
	return uuid.NewString()
}
