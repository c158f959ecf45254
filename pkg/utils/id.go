package utils

import (
	"crypto/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateID returns a time-ordered id, prefixed when prefix is non-empty.
func GenerateID(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Now(), entropy).String()
	entropyMu.Unlock()

	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// GenerateConnectionID returns a random id for a client connection.
func GenerateConnectionID() string {
	return uuid.NewString()
}
