package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashRefreshToken returns the hex SHA-256 of raw. Refresh tokens are
// high-entropy, so a fast digest is enough; it keeps bearer secrets out of
// the database and doubles as the lookup key.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyRefreshToken recomputes the digest of raw and compares it with
// storedDigest in constant time.
func VerifyRefreshToken(raw, storedDigest string) bool {
	computed := HashRefreshToken(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedDigest)) == 1
}
