// Package webhook validates HMAC-signed ingest callbacks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the accepted clock skew for signed timestamps.
const DefaultTolerance = 300 * time.Second

// ErrVerification is the base error for all signature failures.
var ErrVerification = errors.New("webhook verification failed")

// Verify validates a signature header of the form "t=<unix-ts>,v1=<hex-hmac>"
// (or a bare hex signature) against the body. Verification fails closed when
// no secret is configured. When a timestamp is present the signed message is
// "<timestamp>.<body>" and the timestamp must fall within the tolerance of
// the current time.
func Verify(signatureHeader string, body []byte, secret string, tolerance time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: missing webhook secret", ErrVerification)
	}
	timestamp, provided := parseSignatureHeader(signatureHeader)
	if provided == "" {
		return fmt.Errorf("%w: missing signature value", ErrVerification)
	}
	message := body
	if timestamp != 0 {
		if tolerance <= 0 {
			tolerance = DefaultTolerance
		}
		skew := time.Since(time.Unix(timestamp, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrVerification)
		}
		message = append([]byte(strconv.FormatInt(timestamp, 10)+"."), body...)
	}
	expected := computeHMAC(secret, message)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return fmt.Errorf("%w: signature mismatch", ErrVerification)
	}
	return nil
}

// Sign produces a signature header for the body at the given time, suitable
// for the replay tool and local ingestion.
func Sign(body []byte, secret string, at time.Time) string {
	ts := at.Unix()
	message := append([]byte(strconv.FormatInt(ts, 10)+"."), body...)
	return fmt.Sprintf("t=%d,v1=%s", ts, computeHMAC(secret, message))
}

func computeHMAC(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// parseSignatureHeader extracts the timestamp and signature value. A header
// without "=" is treated as a bare signature with no timestamp.
func parseSignatureHeader(header string) (int64, string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, ""
	}
	if !strings.Contains(header, "=") {
		return 0, header
	}
	var timestamp int64
	var signature string
	for part := range strings.SplitSeq(header, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch strings.ToLower(key) {
		case "t", "timestamp":
			if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
				timestamp = ts
			}
		case "v1", "signature", "sha256":
			if signature == "" {
				signature = value
			}
		}
	}
	return timestamp, signature
}
