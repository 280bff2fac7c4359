package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes the webhook signature for a serialized body at a given
// unix-seconds timestamp, keyed by the endpoint secret.
//
// The signed string is "{timestamp}.{body}" and the output is the
// lowercase hex encoding of the HMAC-SHA256 digest. Receivers verify by
// recomputing this value; the encoding is a frozen wire contract and
// must not change.
func Sign(secret string, body []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig matches the signature of body at timestamp.
// Comparison is constant-time.
func Verify(secret string, body []byte, timestamp int64, sig string) bool {
	want := Sign(secret, body, timestamp)
	return hmac.Equal([]byte(sig), []byte(want))
}
