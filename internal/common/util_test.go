package common

import (
	"strings"
	"testing"
)

func TestRandomString_UsesAlphabet(t *testing.T) {
	s, err := RandomString(64, LowerAlnum)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("expected 64 chars, got %d", len(s))
	}
	for _, r := range s {
		if !strings.ContainsRune(LowerAlnum, r) {
			t.Fatalf("unexpected rune %q in %q", r, s)
		}
	}
}

func TestRandomString_Degenerate(t *testing.T) {
	for _, tc := range []struct {
		n        int
		alphabet string
	}{{0, LowerAlnum}, {-1, LowerAlnum}, {5, ""}} {
		s, err := RandomString(tc.n, tc.alphabet)
		if err != nil || s != "" {
			t.Fatalf("RandomString(%d, %q) = %q, %v; want empty", tc.n, tc.alphabet, s, err)
		}
	}
}

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}
