package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	// EmptyBodyHash is the SHA256 hash of an empty body
	EmptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	HeaderTimestamp = "X-Gau-Timestamp"
	HeaderSignature = "X-Gau-Signature"
)

// BuildStringToSign constructs the canonical string for service-to-service
// signatures: METHOD\nPATH\nTIMESTAMP\nSHA256(body)
func BuildStringToSign(method, path string, timestamp int64, bodyHash string) string {
	return fmt.Sprintf("%s\n%s\n%d\n%s", method, path, timestamp, bodyHash)
}

// ComputeHMACSHA256 returns the hex-encoded HMAC-SHA256 of message.
func ComputeHMACSHA256(secretKey, message string) string {
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func HashBodySHA256(body []byte) string {
	if len(body) == 0 {
		return EmptyBodyHash
	}
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// SignRequest returns the timestamp and signature headers for a request.
func SignRequest(secretKey, method, path string, body []byte, at time.Time) (timestamp, signature string) {
	ts := at.Unix()
	message := BuildStringToSign(method, path, ts, HashBodySHA256(body))
	return strconv.FormatInt(ts, 10), ComputeHMACSHA256(secretKey, message)
}
