package core

import (
	"errors"
	"math"
	"reflect"
	"strconv"
	"testing"
)

func TestHeaderNames(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"unique", []string{"Mois", "Lease_Revenue"}, []string{"Mois", "Lease_Revenue"}},
		{"trimmed", []string{" Mois ", "\tLease_Revenue"}, []string{"Mois", "Lease_Revenue"}},
		{"repeated three times", []string{"X", "X", "X"}, []string{"X", "X_1", "X_2"}},
		{"interleaved", []string{"A", "B", "A", "B", "A"}, []string{"A", "B", "A_1", "B_1", "A_2"}},
		{"blank headers", []string{"A", "", " "}, []string{"A", "Unnamed_1", "Unnamed_2"}},
		{"suffix already taken", []string{"X", "X_1", "X"}, []string{"X", "X_1", "X_2"}},
		{"generated name collides later", []string{"X", "X", "X_1"}, []string{"X", "X_1", "X_1_1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := HeaderNames(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("HeaderNames(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestHeaderNamesRepeatedK(t *testing.T) {
	for k := 1; k <= 12; k++ {
		header := make([]string, k)
		for i := range header {
			header[i] = "Encours"
		}
		got := HeaderNames(header)
		if got[0] != "Encours" {
			t.Fatalf("k=%d: first name %q", k, got[0])
		}
		for i := 1; i < k; i++ {
			if want := "Encours_" + strconv.Itoa(i); got[i] != want {
				t.Fatalf("k=%d: name %d = %q, want %q", k, i, got[i], want)
			}
		}
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.5", 1.5, true},
		{"1,5", 1.5, true},
		{" -12,25 ", -12.25, true},
		{"0", 0, true},
		{"1e3", 1000, true},
		{"", 0, false},
		{"abc", 0, false},
		{"1.234,5", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.in)
		if ok != tc.ok || (ok && got != tc.out) {
			t.Fatalf("ParseNumber(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.out, tc.ok)
		}
	}
}

func TestParseNumberCommaMatchesPeriod(t *testing.T) {
	values := []string{"0.5", "12.75", "480.125", "3", "1000.01", "-7.5"}
	for _, v := range values {
		dot, ok1 := ParseNumber(v)
		comma, ok2 := ParseNumber(replaceDot(v))
		if !ok1 || !ok2 || dot != comma {
			t.Fatalf("%q: dot=%v(%v) comma=%v(%v)", v, dot, ok1, comma, ok2)
		}
		if back := strconv.FormatFloat(dot, 'f', -1, 64); back != v {
			t.Fatalf("round trip of %q gave %q", v, back)
		}
	}
}

func replaceDot(s string) string {
	out := []byte(s)
	for i := range out {
		if out[i] == '.' {
			out[i] = ','
		}
	}
	return string(out)
}

func TestNormalize(t *testing.T) {
	raw := [][]string{
		{"Mois", "Label", "Lease_Revenue", "Lease_Revenue", ""},
		{"1", "janvier", "100,5", "1", "x"},
		{"2", "février", "200", "2"},
		{"3", "mars", "", "3", ""},
	}
	tbl, err := Normalize("Mensuel", raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if tbl.Rows() != 3 {
		t.Fatalf("rows = %d, want 3", tbl.Rows())
	}
	wantNames := []string{"Mois", "Label", "Lease_Revenue", "Lease_Revenue_1", "Unnamed_4"}
	if !reflect.DeepEqual(tbl.Names(), wantNames) {
		t.Fatalf("names = %q, want %q", tbl.Names(), wantNames)
	}

	rev, _ := tbl.Column("Lease_Revenue")
	if rev.Kind != Numeric {
		t.Fatalf("Lease_Revenue kind = %s", rev.Kind)
	}
	if v, ok := rev.Float(0); !ok || v != 100.5 {
		t.Fatalf("Lease_Revenue[0] = %v, %v", v, ok)
	}
	if _, ok := rev.Float(2); ok {
		t.Fatalf("empty cell should be missing")
	}
	if !math.IsNaN(rev.Numbers[2]) {
		t.Fatalf("missing cell should be NaN, got %v", rev.Numbers[2])
	}

	label, _ := tbl.Column("Label")
	if label.Kind != Text || label.Texts[1] != "février" {
		t.Fatalf("Label = %+v", label)
	}

	// Short rows are padded; the mixed column stays textual as a whole.
	extra, _ := tbl.Column("Unnamed_4")
	if extra.Kind != Text || !reflect.DeepEqual(extra.Texts, []string{"x", "", ""}) {
		t.Fatalf("Unnamed_4 = %+v", extra)
	}
}

func TestNormalizeColumnFailsSoftAsAWhole(t *testing.T) {
	raw := [][]string{
		{"Amount"},
		{"1,5"},
		{"2"},
		{"n/a"},
	}
	tbl, err := Normalize("t", raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	c, _ := tbl.Column("Amount")
	if c.Kind != Text {
		t.Fatalf("kind = %s, want text", c.Kind)
	}
	if !reflect.DeepEqual(c.Texts, []string{"1,5", "2", "n/a"}) {
		t.Fatalf("texts = %q", c.Texts)
	}
}

func TestNormalizeAllEmptyColumnStaysText(t *testing.T) {
	tbl, err := Normalize("t", [][]string{{"Notes"}, {""}, {" "}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	c, _ := tbl.Column("Notes")
	if c.Kind != Text {
		t.Fatalf("kind = %s, want text", c.Kind)
	}
}

func TestNormalizeHeaderOnly(t *testing.T) {
	tbl, err := Normalize("t", [][]string{{"A", "B"}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if tbl.Rows() != 0 || len(tbl.Columns) != 2 {
		t.Fatalf("got %s", tbl)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	for _, raw := range [][][]string{nil, {}, {{}}} {
		_, err := Normalize("t", raw)
		if !errors.Is(err, ErrEmptyTable) {
			t.Fatalf("Normalize(%v) err = %v, want ErrEmptyTable", raw, err)
		}
	}
}
