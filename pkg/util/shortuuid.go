package util

import (
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// NewUUID returns a random UUID in base58 form, used for issued certificate
// IDs.
func NewUUID() string {
	raw := uuid.New()
	return base58.Encode(raw[:])
}
