package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// MaxSignatureSkew bounds how old a signed request may be before it is
// rejected as a possible replay.
const MaxSignatureSkew = 5 * time.Minute

// VerifySignature checks the v0 request signature: the hex HMAC-SHA256 of
// "v0:<timestamp>:<body>" keyed by the signing secret, and rejects requests
// whose timestamp drifts more than MaxSignatureSkew from now.
func VerifySignature(signingSecret, timestamp, signature string, body []byte, now time.Time) bool {
	if signingSecret == "" || timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	sent := time.Unix(ts, 0)
	skew := now.Sub(sent)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSignatureSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
