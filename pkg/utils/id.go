package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewConnID generates a unique connection handle for one live signaling
// connection.
func NewConnID() string {
	return fmt.Sprintf("conn_%s", uuid.NewString())
}

// NewRequestID generates a unique request ID
func NewRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
