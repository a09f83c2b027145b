package lockmgr

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	ownerIDBytes = 32 // 256 bit
)

// generateOwnerID creates a new random owner ID.
// The ID is hex encoded, so it can be printed and passed back on the command line.
func generateOwnerID() ([]byte, error) {
	raw := make([]byte, ownerIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	id := make([]byte, hex.EncodedLen(len(raw)))
	hex.Encode(id, raw)
	return id, nil
}
