package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
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
		{".5", 50, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"-1", -100, true},
		{"-12.345", -1235, true},
		{"+3", 300, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"-", 0, false},
		{"12€", 0, false},
		{"٣", 0, false}, // non-ASCII digit
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestFromUnits(t *testing.T) {
	cases := []struct {
		in  float64
		out int64
	}{
		{12.34, 1234},
		{0.1 + 0.2, 30},
		{-4.25, -425},
		{0, 0},
	}
	for _, tc := range cases {
		got, err := FromUnits(tc.in)
		if err != nil || got.Cents != tc.out {
			t.Fatalf("FromUnits(%v) = %d (err=%v), want %d", tc.in, got.Cents, err, tc.out)
		}
	}
	for _, v := range []float64{1e30, -1e30, 1e17, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := FromUnits(v); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("FromUnits(%v) err = %v, want ErrInvalidAmount", v, err)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		8000:  "80.00",
		-1205: "-12.05",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("Money{%d}.String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	var v struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
		D Money `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": "3,20", "c": null, "d": 1e2}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.Cents != 1250 || v.B.Cents != 320 || v.C.Cents != 0 || v.D.Cents != 10000 {
		t.Fatalf("unexpected decode: %+v", v)
	}
	out, err := json.Marshal(struct {
		Total Money `json:"total"`
	}{Money{Cents: -1999}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"total":-19.99}` {
		t.Fatalf("marshal = %s", out)
	}
	if err := json.Unmarshal([]byte(`{"a": "lots"}`), &v); err == nil {
		t.Fatalf("expected error for non-numeric amount")
	}
	if err := json.Unmarshal([]byte(`{"a": 1e30}`), &v); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for out-of-range amount, got %v", err)
	}
}
