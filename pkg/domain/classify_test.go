package domain

import (
	"errors"
	"math"
	"testing"
)

func TestClassifyBoundaries(t *testing.T) {
	const lo, hi = -20.0, -15.0
	cases := []struct {
		name string
		temp float64
		want Status
	}{
		{"at min", lo, StatusSafe},
		{"at max", hi, StatusSafe},
		{"inside", -17.5, StatusSafe},
		{"just above max", hi + 0.1, StatusAtRisk},
		{"at max plus buffer", hi + Buffer, StatusAtRisk},
		{"beyond max plus buffer", hi + Buffer + 0.01, StatusUnsafe},
		{"just below min", lo - 0.1, StatusAtRisk},
		{"at min minus buffer", lo - Buffer, StatusAtRisk},
		{"beyond min minus buffer", lo - Buffer - 0.01, StatusUnsafe},
		{"scenario safe", -16, StatusSafe},
		{"scenario at risk", -14, StatusAtRisk},
		{"scenario unsafe", -10, StatusUnsafe},
		{"nan", math.NaN(), StatusUnsafe},
		{"+inf", math.Inf(1), StatusUnsafe},
		{"-inf", math.Inf(-1), StatusUnsafe},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.temp, lo, hi); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.temp, got, tc.want)
			}
		})
	}
}

func TestClassifyPartitionsLine(t *testing.T) {
	limits := []TempLimits{{-20, -15}, {2, 8}, {0, 0}, {-80, -60}}
	for _, l := range limits {
		for temp := l.Min - 10; temp <= l.Max+10; temp += 0.05 {
			got := ClassifyWithin(temp, l)
			inside := temp >= l.Min && temp <= l.Max
			near := (temp > l.Max && temp <= l.Max+Buffer) || (temp < l.Min && temp >= l.Min-Buffer)
			switch {
			case inside && got != StatusSafe,
				near && got != StatusAtRisk,
				!inside && !near && got != StatusUnsafe:
				t.Fatalf("limits %+v temp %v classified %s", l, temp, got)
			}
			if !got.Valid() {
				t.Fatalf("classifier returned %q outside the status set", got)
			}
		}
	}
}

func TestTempLimitsValidate(t *testing.T) {
	cases := []struct {
		limits TempLimits
		ok     bool
	}{
		{DefaultTempLimits, true},
		{TempLimits{Min: 2, Max: 2}, true},
		{TempLimits{Min: 3, Max: 2}, false},
		{TempLimits{Min: math.NaN(), Max: 2}, false},
		{TempLimits{Min: 0, Max: math.Inf(1)}, false},
	}
	for _, tc := range cases {
		err := tc.limits.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("Validate(%+v) = %v, want ok=%v", tc.limits, err, tc.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	}
	if err := ValidateTemperature(math.NaN()); err == nil {
		t.Fatalf("expected NaN reading to be rejected")
	}
	if err := ValidateTemperature(-16); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses() {
		if got, err := ParseStatus(string(s)); err != nil || got != s {
			t.Fatalf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseStatus("at risk"); err == nil {
		t.Fatalf("status parsing must be exact")
	}
}
