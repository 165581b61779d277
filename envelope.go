package keyedstore

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// envelope is the JSON record written to the backend for every key.
type envelope struct {
	Value     any       `json:"value"`
	Type      ValueType `json:"type"`
	Strict    bool      `json:"strict"`
	ExpiresAt *int64    `json:"expiresAt"` // epoch milliseconds, nil = never
}

func (e envelope) expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.UnixMilli() > *e.ExpiresAt
}

// encode serializes the envelope. Dates go through their RFC 3339 string
// form so the stored payload stays plain JSON.
func (e envelope) encode() (string, error) {
	switch v := e.Value.(type) {
	case time.Time:
		e.Value = v.Format(time.RFC3339Nano)
	case *time.Time:
		if v != nil {
			e.Value = v.Format(time.RFC3339Nano)
		}
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(raw), nil
}

// decodeEnvelope parses a raw backend record and undoes the JSON
// round-trip for typed values: int-typed numbers come back as int64,
// date-typed strings as time.Time. Unparsable input is reported as an
// error so callers can treat the entry as absent.
func decodeEnvelope(raw string) (envelope, error) {
	var e envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	switch e.Type {
	case TypeInt:
		// Values outside int64 range stay float64; converting them
		// would be implementation-dependent.
		if f, ok := e.Value.(float64); ok && f == math.Trunc(f) && f >= -(1<<63) && f < (1<<63) {
			e.Value = int64(f)
		}
	case TypeDate:
		if s, ok := e.Value.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				e.Value = t
			}
		}
	}

	return e, nil
}
