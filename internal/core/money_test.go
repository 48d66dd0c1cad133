package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"2.994", 299, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.004", 0, false}, // rounds to zero
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"10000000000000000", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
			}
		}
	}
}

func TestParseMoneyAllowsSign(t *testing.T) {
	m, err := ParseMoney("-12,5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Cents != -1250 {
		t.Fatalf("expected -1250, got %d", m.Cents)
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		1230:   "12.30",
		-1999:  "-19.99",
		100000: "1000.00",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("%d: expected %q, got %q", cents, want, got)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Money `json:"a"`
	}{Money{Cents: 1230}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":12.30}` {
		t.Fatalf("unexpected json %s", b)
	}

	var in struct {
		N Money `json:"n"`
		S Money `json:"s"`
		Z Money `json:"z"`
	}
	if err := json.Unmarshal([]byte(`{"n":12.3,"s":"4,56","z":null}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.N.Cents != 1230 || in.S.Cents != 456 || in.Z.Cents != 0 {
		t.Fatalf("unexpected values %+v", in)
	}

	if err := json.Unmarshal([]byte(`{"n":"dieci"}`), &in); err == nil {
		t.Fatalf("expected error for non numeric amount")
	}
}

func TestFormatEuros(t *testing.T) {
	cases := map[int64]string{
		0:         "€0,00",
		5:         "€0,05",
		123450:    "€1.234,50",
		100000000: "€1.000.000,00",
		-2500:     "-€25,00",
	}
	for cents, want := range cases {
		if got := FormatEuros(Money{Cents: cents}); got != want {
			t.Fatalf("%d: expected %q, got %q", cents, want, got)
		}
	}
}
