// ABOUTME: Shared-secret challenge verification for agent auth messages.
// ABOUTME: HMAC-SHA256 over the decimal timestamp, bounded by a freshness window.

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/pifleet/pncp/internal/wire"
)

// DefaultWindow is the maximum allowed skew between an auth timestamp and
// receipt time. Replay of a captured (ts, hmac) pair inside the window is
// an accepted property of the scheme, not something the verifier defends
// against.
const DefaultWindow = 60 * time.Second

// Verifier validates auth messages against a shared secret.
type Verifier struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier for the given secret. A zero window
// selects DefaultWindow.
func NewVerifier(secret []byte, window time.Duration) *Verifier {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Verifier{secret: secret, window: window, now: time.Now}
}

// Verify reports whether the auth message carries a fresh timestamp and a
// matching authentication code. It fails closed: a nil message, a missing
// or non-positive timestamp, or any code mismatch all reject.
func (v *Verifier) Verify(a *wire.Auth) bool {
	if a == nil || a.Timestamp <= 0 {
		return false
	}

	skew := v.now().Unix() - a.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(v.window/time.Second) {
		return false
	}

	expected := ComputeCode(v.secret, a.Timestamp)
	// hmac.Equal is constant time and rejects length mismatches.
	return hmac.Equal([]byte(a.HMAC), []byte(expected))
}

// ComputeCode returns the expected authentication code for a timestamp:
// HMAC-SHA256 over the decimal string of ts, keyed by secret, as a
// lowercase hex digest. The agent uses this to build its auth message.
func ComputeCode(secret []byte, ts int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
