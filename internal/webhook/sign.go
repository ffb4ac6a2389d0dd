package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// sign computes the webhook-id/webhook-timestamp/webhook-signature
// header trio for a v2 webhook delivery, following the
// id.timestamp.body signing convention (Svix-compatible) with
// hmac.New(sha256.New, signingKey(secret)) / hmac.Equal, grounded on
// CodeTease-quirm's query-signature pattern.
func sign(secret string, body []byte) (id, timestamp, signature string) {
	id = "msg_" + uuid.NewString()
	timestamp = strconv.FormatInt(time.Now().Unix(), 10)

	toSign := fmt.Sprintf("%s.%s.%s", id, timestamp, body)
	mac := hmac.New(sha256.New, signingKey(secret))
	mac.Write([]byte(toSign))
	signature = "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return id, timestamp, signature
}

// Verify reports whether the given header trio is a valid signature for
// body under secret, using constant-time comparison. Exposed for test
// doubles / documentation of the scheme; the gateway itself only signs
// outbound requests, it never receives signed ones.
func Verify(secret string, body []byte, id, timestamp, signature string) bool {
	toSign := fmt.Sprintf("%s.%s.%s", id, timestamp, body)
	mac := hmac.New(sha256.New, signingKey(secret))
	mac.Write([]byte(toSign))
	expected := "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// signingKey base64-decodes secret to obtain the raw HMAC key, matching
// the Svix-style convention of distributing signing secrets as base64.
// A secret that isn't valid base64 is used as a raw key instead, so a
// plain-text secret configured by mistake still signs consistently
// rather than failing closed.
func signingKey(secret string) []byte {
	if key, err := base64.StdEncoding.DecodeString(secret); err == nil {
		return key
	}
	return []byte(secret)
}
