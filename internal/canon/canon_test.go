package canon

import (
	"bytes"
	"testing"
)

func TestCanonicalizeKeyOrderIndependence(t *testing.T) {
	a := []byte(`{"b": 1, "a": 2, "c": {"y": 1, "x": 2}}`)
	b := []byte(`{"c": {"x": 2, "y": 1}, "a": 2, "b": 1}`)

	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if !bytes.Equal(ca, cb) {
		t.Fatalf("expected equal canonical bytes, got %q vs %q", ca, cb)
	}
}

func TestCanonicalizeWhitespaceInsensitive(t *testing.T) {
	a := []byte(`{"a":1}`)
	b := []byte("{\n  \"a\"   :   1\n}\n")

	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if !bytes.Equal(ca, cb) {
		t.Fatalf("expected equal canonical bytes, got %q vs %q", ca, cb)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := [][]byte{
		[]byte(`{"z":1,"a":[3,2,1],"m":{"k":"v"}}`),
		[]byte(`"hello\nworld"`),
		[]byte(`1.50`),
		[]byte(`100`),
		[]byte(`null`),
		[]byte(`[true,false,null]`),
	}
	for _, in := range inputs {
		once, err := Canonicalize(in)
		if err != nil {
			t.Fatalf("canonicalize %q: %v", in, err)
		}
		twice, err := Canonicalize(once)
		if err != nil {
			t.Fatalf("re-canonicalize %q: %v", once, err)
		}
		if !bytes.Equal(once, twice) {
			t.Fatalf("not idempotent: %q != %q", once, twice)
		}
	}
}

func TestCanonicalizeNumberForms(t *testing.T) {
	cases := map[string]string{
		`1.50`:  `1.5`,
		`1.0`:   `1`,
		`100`:   `100`,
		`-0`:    `0`,
		`1e2`:   `100`,
		`2.5e1`: `25`,
	}
	for in, want := range cases {
		got, err := Canonicalize([]byte(in))
		if err != nil {
			t.Fatalf("canonicalize %q: %v", in, err)
		}
		if string(got) != want {
			t.Errorf("canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalizeStringEscaping(t *testing.T) {
	in := []byte("\"a\\u2028b\\u2029c\\\"d\"")
	got, err := Canonicalize(in)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := "\"a\\u2028b\\u2029c\\\"d\""
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeRejectsTrailingData(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":1} garbage`))
	if err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestPAEInjectivity(t *testing.T) {
	p1 := PAE("a", []byte("bc"))
	p2 := PAE("ab", []byte("c"))
	if bytes.Equal(p1, p2) {
		t.Fatalf("expected distinct PAE bytes for (a,bc) vs (ab,c), got identical: %q", p1)
	}
}

func TestPAEFormat(t *testing.T) {
	got := PAE("application/vnd.haldir.attestation+json", []byte(`{"x":1}`))
	want := "DSSEv1 39 application/vnd.haldir.attestation+json 7 {\"x\":1}"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
