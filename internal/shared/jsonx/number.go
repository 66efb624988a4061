// Package jsonx provides tolerant JSON field types shared across transport
// layers. Webhook payloads from the voice provider are loosely typed, so
// numeric identifiers must round-trip whether they arrive as numbers or
// strings.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexID is an int64 identifier that unmarshals from a JSON number or a
// numeric string and always marshals back as a number.
type FlexID int64

// Int64 returns the identifier as a plain int64.
func (f FlexID) Int64() int64 { return int64(f) }

// IsZero reports whether the identifier is unset.
func (f FlexID) IsZero() bool { return f == 0 }

// MarshalJSON emits the identifier as a JSON number.
func (f FlexID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(f), 10)), nil
}

// UnmarshalJSON accepts a number, a numeric string, or null.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*f = 0
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Tolerate decimal forms like "7.0" that some callers emit.
		if fval, ferr := strconv.ParseFloat(raw, 64); ferr == nil && fval == float64(int64(fval)) {
			*f = FlexID(int64(fval))
			return nil
		}
		return fmt.Errorf("invalid numeric identifier %q", raw)
	}

	*f = FlexID(parsed)
	return nil
}
