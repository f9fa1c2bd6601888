// Package signature implements payload normalization, integrity hashing,
// and compliance-certificate generation for the signing workflow.
package signature

import (
	"encoding/base64"
	"strings"
	"time"

	"signflow/backend/pkg/models"
)

// NormalizePayload canonicalizes a base64 signature payload: any data-URI
// prefix is stripped up to the first comma, the URL-safe alphabet is
// converted to standard, and padding is recomputed to a multiple of four.
// Normalization is a fixed point: normalizing a normalized payload returns
// it unchanged.
func NormalizePayload(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if idx := strings.IndexByte(s, ','); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	s = strings.TrimRight(s, "=")

	if s == "" {
		return "", models.NewError(models.KindInvalidInput, "InvalidSignaturePayload",
			"signature payload is empty")
	}
	for _, c := range s {
		if !isBase64Char(c) {
			return "", models.NewError(models.KindInvalidInput, "InvalidSignaturePayload",
				"signature payload contains non-base64 characters")
		}
	}
	// A base64 stream can never leave a single trailing character.
	if len(s)%4 == 1 {
		return "", models.NewError(models.KindInvalidInput, "InvalidSignaturePayload",
			"signature payload has invalid length")
	}
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	return s, nil
}

func isBase64Char(c rune) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') || c == '+' || c == '/'
}

// DecodePayload normalizes raw and returns the decoded signature bytes.
func DecodePayload(raw string) (string, []byte, error) {
	normalized, err := NormalizePayload(raw)
	if err != nil {
		return "", nil, err
	}
	data, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return "", nil, models.WrapError(models.KindInvalidInput, "InvalidSignaturePayload",
			"signature payload is not valid base64", err)
	}
	return normalized, data, nil
}

// ParseTimestamp accepts a signing timestamp as a time.Time, an RFC 3339
// (or date-only) string, or an epoch number in seconds or milliseconds.
func ParseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
	case float64:
		return fromEpoch(int64(t)), nil
	case int64:
		return fromEpoch(t), nil
	case int:
		return fromEpoch(int64(t)), nil
	}
	return time.Time{}, models.NewError(models.KindInvalidInput, "InvalidTimestamp",
		"timestamp is not a date, RFC 3339 string, or epoch number")
}

// fromEpoch treats values beyond the year-33658 second range as
// milliseconds.
func fromEpoch(n int64) time.Time {
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
