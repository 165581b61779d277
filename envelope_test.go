package keyedstore

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestEnvelope_EncodeDecode(t *testing.T) {
	at := int64(1714564800000)
	env := envelope{
		Value:     "hello",
		Type:      TypeString,
		Strict:    true,
		ExpiresAt: &at,
	}

	raw, err := env.encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	for _, field := range []string{`"value"`, `"type"`, `"strict"`, `"expiresAt"`} {
		if !strings.Contains(raw, field) {
			t.Errorf("encoded envelope missing %s: %s", field, raw)
		}
	}

	got, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Value != "hello" || got.Type != TypeString || !got.Strict {
		t.Errorf("decoded envelope = %+v", got)
	}
	if got.ExpiresAt == nil || *got.ExpiresAt != at {
		t.Errorf("expiresAt = %v, want %d", got.ExpiresAt, at)
	}
}

func TestEnvelope_NoExpiryMarshalsNull(t *testing.T) {
	raw, err := envelope{Value: 1, Type: TypeInt, Strict: true}.encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.Contains(raw, `"expiresAt":null`) {
		t.Errorf("expected explicit null expiresAt, got %s", raw)
	}
}

func TestEnvelope_DateThroughStringForm(t *testing.T) {
	date := time.Date(2024, 5, 1, 12, 0, 0, 500, time.UTC)

	raw, err := envelope{Value: date, Type: TypeDate, Strict: true}.encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.Contains(raw, "2024-05-01T12:00:00") {
		t.Errorf("date not serialized through its string form: %s", raw)
	}

	got, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	gotTime, ok := got.Value.(time.Time)
	if !ok {
		t.Fatalf("decoded value is %T, want time.Time", got.Value)
	}
	if !gotTime.Equal(date) {
		t.Errorf("decoded date = %v, want %v", gotTime, date)
	}
}

func TestEnvelope_IntCoercion(t *testing.T) {
	got, err := decodeEnvelope(`{"value":42,"type":"int","strict":true,"expiresAt":null}`)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Value != int64(42) {
		t.Errorf("int value decoded as %T(%v), want int64(42)", got.Value, got.Value)
	}

	// A fractional payload under an int tag stays float64 so the strict
	// re-validation can catch it.
	got, err = decodeEnvelope(`{"value":4.2,"type":"int","strict":true,"expiresAt":null}`)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Value != 4.2 {
		t.Errorf("fractional value decoded as %T(%v), want float64(4.2)", got.Value, got.Value)
	}
}

// TestEnvelope_IntBeyondInt64Range: an integral value too large for
// int64 is left as float64 instead of being coerced, so it round-trips
// unchanged.
func TestEnvelope_IntBeyondInt64Range(t *testing.T) {
	for _, raw := range []string{
		`{"value":1e300,"type":"int","strict":true,"expiresAt":null}`,
		`{"value":-1e300,"type":"int","strict":true,"expiresAt":null}`,
		`{"value":1e19,"type":"int","strict":true,"expiresAt":null}`,
	} {
		got, err := decodeEnvelope(raw)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if _, ok := got.Value.(float64); !ok {
			t.Errorf("out-of-range int decoded as %T(%v), want float64", got.Value, got.Value)
		}
	}

	// Boundary: math.MinInt64 is exactly representable and converts.
	got, err := decodeEnvelope(`{"value":-9223372036854775808,"type":"int","strict":true,"expiresAt":null}`)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Value != int64(math.MinInt64) {
		t.Errorf("MinInt64 decoded as %T(%v), want int64", got.Value, got.Value)
	}
}

func TestDecodeEnvelope_Corrupt(t *testing.T) {
	for _, raw := range []string{"", "{", "not json", `"just a string"`, "[1,2,3]"} {
		if _, err := decodeEnvelope(raw); err == nil {
			t.Errorf("decodeEnvelope(%q) should fail", raw)
		}
	}
}

func TestEnvelope_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute).UnixMilli()
	future := now.Add(time.Minute).UnixMilli()

	if !(envelope{ExpiresAt: &past}).expired(now) {
		t.Error("past expiresAt should be expired")
	}
	if (envelope{ExpiresAt: &future}).expired(now) {
		t.Error("future expiresAt should not be expired")
	}
	if (envelope{}).expired(now) {
		t.Error("nil expiresAt should never expire")
	}
}
