package rfq

import (
	crand "crypto/rand"
	"encoding/hex"
	mrand "math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewBucket generates a random 128-bit correlation id for a quote request.
// It prefers the OS entropy source and degrades through weaker sources; it
// never returns a fixed or predictable value.
func NewBucket() string {
	var b [16]byte
	if _, err := crand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}

	if u, err := uuid.NewRandom(); err == nil {
		return strings.ReplaceAll(u.String(), "-", "")
	}

	r := mrand.New(mrand.NewSource(time.Now().UnixNano()))
	for i := range b {
		b[i] = byte(r.Intn(256))
	}
	return hex.EncodeToString(b[:])
}
