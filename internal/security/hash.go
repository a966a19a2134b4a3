package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a raw verification/forgot/reset token for storage. The
// pepper keeps a leaked database from being enough to mint valid tokens.
// Matching happens in the repositories' conditional updates, so consuming a
// token and checking it are one atomic step.
func HashToken(raw, pepper string) string {
	h := sha256.Sum256([]byte(raw + ":" + pepper))
	return hex.EncodeToString(h[:])
}
