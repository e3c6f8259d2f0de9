package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

var sensitiveKeyFragments = []string{"secret", "token", "password", "signature", "authorization", "api_key", "cookie"}

// SafeAttributes drops attributes whose keys look like credentials.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error safe to attach to a span. Messages that mention
// credentials are replaced with a generic one.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	if isSensitiveKey(err.Error()) {
		return errors.New("redacted error")
	}
	return err
}

func isSensitiveKey(value string) bool {
	value = strings.ToLower(value)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(value, fragment) {
			return true
		}
	}
	return false
}
