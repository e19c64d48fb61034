package amount

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestAddOverflow(t *testing.T) {
	sum, err := Add(MustNew(2), MustNew(3))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum.Int64() != 5 {
		t.Fatalf("expected 5, got %d", sum.Int64())
	}
	if _, err := Add(Max, MustNew(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestSubUnderflow(t *testing.T) {
	diff, err := Sub(MustNew(5_000_000), MustNew(2_000_000))
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if diff.Int64() != 3_000_000 {
		t.Fatalf("expected 3000000, got %d", diff.Int64())
	}
	if _, err := Sub(MustNew(1), MustNew(2)); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
}

func TestApply(t *testing.T) {
	a, err := Apply(MustNew(10), -10)
	if err != nil || !a.IsZero() {
		t.Fatalf("expected zero, got %v (%v)", a, err)
	}
	if _, err := Apply(MustNew(10), -11); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if _, err := Apply(MustNew(10), math.MinInt64); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow for min int, got %v", err)
	}
	if _, err := Apply(Max, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestNewRejectsNegative(t *testing.T) {
	if _, err := New(-1); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected negative error, got %v", err)
	}
}

func TestParseSTX(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		err  error
	}{
		{in: "5", want: 5_000_000},
		{in: "1.5", want: 1_500_000},
		{in: "0.000001", want: 1},
		{in: "0", want: 0},
		{in: "0.0000001", err: ErrFractional},
		{in: "-1", err: ErrNegative},
		{in: "abc", err: ErrMalformed},
		{in: "9223372036855", err: ErrOverflow},
	}
	for _, tc := range cases {
		got, err := ParseSTX(tc.in)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("ParseSTX(%q): expected %v, got %v", tc.in, tc.err, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSTX(%q): %v", tc.in, err)
		}
		if got.Int64() != tc.want {
			t.Fatalf("ParseSTX(%q): expected %d, got %d", tc.in, tc.want, got.Int64())
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format(MustNew(1_500_000)); got != "1.500000 STX" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := Format(Zero); got != "0.000000 STX" {
		t.Fatalf("unexpected zero format %q", got)
	}
}

func TestJSONRejectsNegative(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte("42"), &a); err != nil || a.Int64() != 42 {
		t.Fatalf("decode: %v %v", a, err)
	}
	if err := json.Unmarshal([]byte("-3"), &a); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected negative error, got %v", err)
	}
}
