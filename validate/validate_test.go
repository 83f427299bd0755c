package validate

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// body builds content of exactly n characters containing parts headings.
func body(n, parts int) string {
	var b strings.Builder
	for i := 1; i <= parts; i++ {
		fmt.Fprintf(&b, "## Part %d\n", i)
	}
	if b.Len() > n {
		panic("body: headings longer than requested length")
	}
	b.WriteString(strings.Repeat("a", n-b.Len()))
	return b.String()
}

func TestCheckStandardBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		chars int
		parts int
		ok    bool
	}{
		{"min chars", 8000, 5, true},
		{"max chars", 13000, 9, true},
		{"below min chars", 7999, 5, false},
		{"above max chars", 13001, 5, false},
		{"too few parts", 10000, 4, false},
		{"too many parts", 10000, 10, false},
		{"middle", 10000, 7, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Check(body(tc.chars, tc.parts), Standard)
			if r.Chars != tc.chars || r.Parts != tc.parts {
				t.Fatalf("measured %d chars / %d parts, want %d / %d", r.Chars, r.Parts, tc.chars, tc.parts)
			}
			if r.OK() != tc.ok {
				t.Fatalf("OK() = %v, want %v (violations %v)", r.OK(), tc.ok, r.Violations)
			}
			if tc.ok && r.Err() != nil {
				t.Fatalf("Err() = %v on passing result", r.Err())
			}
		})
	}
}

func TestCheckExtendedIsUnbounded(t *testing.T) {
	if r := Check(body(50000, 6), Extended); !r.OK() {
		t.Fatalf("50000 chars should pass extended: %v", r.Violations)
	}
	if r := Check(body(5999, 6), Extended); r.OK() {
		t.Fatal("5999 chars should fail extended")
	}
	if got := Extended.CharRange(); got != "6000+" {
		t.Fatalf("CharRange() = %q", got)
	}
}

func TestValidationError(t *testing.T) {
	err := Check(body(100, 2), Standard).Err()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Err() = %T, want *ValidationError", err)
	}
	if !ve.Has(MetricChars) || !ve.Has(MetricParts) {
		t.Fatalf("violations = %v", ve.Result.Violations)
	}
	ve.Key = "as_10"
	msg := ve.Error()
	for _, want := range []string{`"as_10"`, "characters 100 outside 8000-13000", "parts 2 outside 5-9"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestCountParts(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"## Part 1\n## Part 2", 2},
		{"##  Part 10 - Wrap up", 1},
		{"### Part 1", 0},
		{"text ## Part 1", 0},
		{"## Partial 1", 0},
		{"## Part one", 0},
		{"## Part 12b", 0},
		{"\n## Part 3\r\n", 1},
	}
	for _, tc := range tests {
		if got := CountParts(tc.in); got != tc.want {
			t.Errorf("CountParts(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestLengthUTF16(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"héllo", 5},
		{"€", 1},
		{"📈", 2},
		{"a📈b", 4},
	}
	for _, tc := range tests {
		if got := Length(tc.in); got != tc.want {
			t.Errorf("Length(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPreset(t *testing.T) {
	b, err := Preset("standard", nil)
	if err != nil || b != Standard {
		t.Fatalf("Preset(standard) = %+v, %v", b, err)
	}
	custom := map[string]Bounds{"short": {MinChars: 100, MaxChars: 200, MinParts: 1, MaxParts: 3}}
	if b, err := Preset("short", custom); err != nil || b.MaxChars != 200 {
		t.Fatalf("Preset(short) = %+v, %v", b, err)
	}
	if _, err := Preset("huge", custom); err == nil || !strings.Contains(err.Error(), "short") {
		t.Fatalf("Preset(huge) error = %v", err)
	}
}

func TestSanity(t *testing.T) {
	if err := Standard.Sanity(); err != nil {
		t.Fatal(err)
	}
	if err := Extended.Sanity(); err != nil {
		t.Fatal(err)
	}
	if err := (Bounds{MinChars: 10, MaxChars: 5}).Sanity(); err == nil {
		t.Fatal("expected error for inverted char range")
	}
	if err := (Bounds{MinParts: 9, MaxParts: 5}).Sanity(); err == nil {
		t.Fatal("expected error for inverted part range")
	}
}
