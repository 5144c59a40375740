package session

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeviceFingerprint derives a stable device identifier from the caller's IP
// address and user agent. It stands in for an explicit device ID when the
// client does not supply one.
func DeviceFingerprint(ipAddress, userAgent string) string {
	sum := sha256.Sum256([]byte(ipAddress + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}
