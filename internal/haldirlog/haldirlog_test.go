package haldirlog

import "testing"

func TestNewProductionAndDevelopment(t *testing.T) {
	if _, err := New(false); err != nil {
		t.Fatalf("New(false): %v", err)
	}
	if _, err := New(true); err != nil {
		t.Fatalf("New(true): %v", err)
	}
}

func TestNopDoesNotPanic(t *testing.T) {
	logger := Nop()
	logger.Infow("test", "foo", "bar")
}
