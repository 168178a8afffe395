package internal

import (
	"errors"
	"math"
	"testing"
)

func roundTrip[T Scalar](t *testing.T, values ...T) {
	t.Helper()
	for _, v := range values {
		got, ok, err := Decode[T](Native(Encode(v)))
		if err != nil || !ok || got != v {
			t.Errorf("Decode(Encode(%v)) = (%v, %v, %v), want (%v, true, nil)", v, got, ok, err, v)
		}
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	roundTrip(t, "", "hello", "中文", " spaced ")
	roundTrip[int32](t, 0, 42, -7, math.MaxInt32, math.MinInt32)
	roundTrip[int64](t, 0, 42, -7, math.MaxInt64, math.MinInt64)
	roundTrip(t, 0.0, -1.5, 3.141592653589793, 1e21, math.SmallestNonzeroFloat64, math.Inf(1), math.Inf(-1))
	roundTrip(t, true, false)
}

func TestCodec_BooleanEncoding(t *testing.T) {
	if Encode(true) != "-1" {
		t.Errorf("Encode(true) = %q, want -1", Encode(true))
	}
	if Encode(false) != "0" {
		t.Errorf("Encode(false) = %q, want 0", Encode(false))
	}

	tests := []struct {
		raw  string
		want bool
	}{
		{raw: "0", want: false},
		{raw: "-1", want: true},
		{raw: "1", want: true},
		{raw: "2", want: true},
		{raw: "-42", want: true},
	}
	for _, tt := range tests {
		got, ok, err := Decode[bool](Native(tt.raw))
		if err != nil || !ok || got != tt.want {
			t.Errorf("Decode[bool](%q) = (%v, %v, %v), want (%v, true, nil)", tt.raw, got, ok, err, tt.want)
		}
	}
}

func TestCodec_Absent(t *testing.T) {
	if v, ok, err := Decode[string](Absent); v != "" || ok || err != nil {
		t.Errorf("Decode[string](Absent) = (%q, %v, %v)", v, ok, err)
	}
	if v, ok, err := Decode[int64](Absent); v != 0 || ok || err != nil {
		t.Errorf("Decode[int64](Absent) = (%d, %v, %v)", v, ok, err)
	}
	if v, ok, err := Decode[float64](Native("")); v != 0 || ok || err != nil {
		t.Errorf("Decode[float64](empty) = (%v, %v, %v)", v, ok, err)
	}
	if v, ok, err := Decode[string](Native("")); v != "" || !ok || err != nil {
		t.Errorf("Decode[string](empty) = (%q, %v, %v), empty string is a present value", v, ok, err)
	}
}

func TestCodec_Mismatch(t *testing.T) {
	tests := []struct {
		name   string
		decode func() error
	}{
		{name: "int32 from text", decode: func() error { _, _, err := Decode[int32](Native("abc")); return err }},
		{name: "int32 overflow", decode: func() error { _, _, err := Decode[int32](Native("2147483648")); return err }},
		{name: "int64 from float", decode: func() error { _, _, err := Decode[int64](Native("1.5")); return err }},
		{name: "float64 from text", decode: func() error { _, _, err := Decode[float64](Native("1.5x")); return err }},
		{name: "bool from text", decode: func() error { _, _, err := Decode[bool](Native("true")); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.decode(); !errors.Is(err, ErrDecodeMismatch) {
				t.Errorf("error = %v, want %v", err, ErrDecodeMismatch)
			}
		})
	}
}

func TestCodec_NativeNumericParsing(t *testing.T) {
	if v, ok, err := Decode[float64](Native("-1.5")); v != -1.5 || !ok || err != nil {
		t.Errorf("Decode[float64](-1.5) = (%v, %v, %v)", v, ok, err)
	}
	if v, ok, err := Decode[float64](Native("42")); v != 42 || !ok || err != nil {
		t.Errorf("Decode[float64](42) = (%v, %v, %v)", v, ok, err)
	}
	if v, ok, err := Decode[int64](Native("42")); v != 42 || !ok || err != nil {
		t.Errorf("Decode[int64](42) = (%v, %v, %v)", v, ok, err)
	}
}
