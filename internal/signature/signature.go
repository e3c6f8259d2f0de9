// Package signature signs and verifies webhook bodies with HMAC-SHA256.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const headerPrefix = "sha256="

var (
	ErrMissing   = errors.New("signature_missing")
	ErrMismatch  = errors.New("signature_mismatch")
	ErrMalformed = errors.New("signature_malformed")
	ErrExpired   = errors.New("signature_expired")
)

// Sign returns hex(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(mac(secret, body))
}

// Header formats a signature for the X-Webhook-Signature header.
func Header(sig string) string {
	return headerPrefix + sig
}

// ParseHeader accepts "sha256=<hex>" or a bare hex digest.
func ParseHeader(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= len(headerPrefix) && strings.EqualFold(value[:len(headerPrefix)], headerPrefix) {
		value = value[len(headerPrefix):]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

// Verify checks provided against the expected MAC in constant time. A missing
// signature costs the same work as a wrong one.
func Verify(secret string, body []byte, provided string) error {
	expected := mac(secret, body)

	sig := ParseHeader(provided)
	if sig == "" {
		hmac.Equal(expected, make([]byte, len(expected)))
		return ErrMissing
	}

	decoded, err := hex.DecodeString(sig)
	if err != nil || len(decoded) != len(expected) {
		hmac.Equal(expected, make([]byte, len(expected)))
		return ErrMismatch
	}
	if !hmac.Equal(expected, decoded) {
		return ErrMismatch
	}
	return nil
}

// SignTimestamped signs "<unix>.<body>" so receivers can reject replays.
func SignTimestamped(secret string, body []byte, ts time.Time) string {
	return Sign(secret, timestamped(body, ts.Unix()))
}

// VerifyTimestamped verifies a timestamped signature and enforces maxSkew
// between ts and now.
func VerifyTimestamped(secret string, body []byte, provided, ts string, now time.Time, maxSkew time.Duration) error {
	unix, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return ErrMalformed
	}
	if maxSkew > 0 {
		skew := now.Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > maxSkew {
			return ErrExpired
		}
	}
	return Verify(secret, timestamped(body, unix), provided)
}

func mac(secret string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}

func timestamped(body []byte, unix int64) []byte {
	prefix := strconv.FormatInt(unix, 10) + "."
	out := make([]byte, 0, len(prefix)+len(body))
	out = append(out, prefix...)
	return append(out, body...)
}
