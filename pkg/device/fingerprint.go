package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives a stable hash for a physical device from its signals.
// The concatenation order is fixed and the inputs are normalized, so the
// same device always hashes to the same value. IP is excluded: an address
// change does not mean a different device.
func Fingerprint(signals Signals) string {
	parts := []string{
		normalize(signals.UserAgent),
		normalize(signals.Platform),
		normalize(signals.Language),
		normalize(signals.Timezone),
		normalize(signals.Screen),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
