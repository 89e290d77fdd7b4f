package platform

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a 24 character lowercase hex identifier. The first six bytes
// are the millisecond timestamp of a UUIDv7, so IDs sort by creation time.
func NewID() string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	var b [12]byte
	copy(b[:6], u[:6])
	copy(b[6:], u[10:16])
	return hex.EncodeToString(b[:])
}

// NewToken returns an opaque build-service token such as "services-<uuid>".
func NewToken(prefix string) string {
	return prefix + uuid.New().String()
}
